package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/amberbalance/internal/amber"
	"github.com/jgoulah/amberbalance/pkg/models"
)

var fetchNoSave bool

var fetchCmd = &cobra.Command{
	Use:   "fetch [site...]",
	Short: "Compute the month-to-date position now",
	Long: `Fetches this month's usage up to yesterday for each site, prints the daily
breakdown and totals, and stores the report in the local database.

Sites default to site_id / site_ids from the config, or are discovered.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchNoSave, "no-save", false, "Do not store the report in the database")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	client := newClient(cfg, log)

	sites, err := resolveSites(ctx, cfg, client, args)
	if err != nil {
		return err
	}

	reporters, err := newReporters(cfg, client, sites, log)
	if err != nil {
		return err
	}

	if !fetchNoSave {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		for _, r := range reporters {
			r.AddListener(db)
		}
	}

	var failed []error
	for _, r := range reporters {
		fmt.Printf("Fetching usage for site %s...\n", r.SiteID())
		report, err := r.Refresh(ctx)
		if err != nil {
			var authErr *amber.AuthError
			if errors.As(err, &authErr) {
				return fmt.Errorf("%w (hint: check the API token)", err)
			}
			fmt.Printf("⚠ %v\n", err)
			failed = append(failed, err)
			continue
		}
		printReport(report)
	}

	return errors.Join(failed...)
}

func printReport(report models.Report) {
	fmt.Printf("\n%s: %s to %s\n", report.SiteID, report.RangeStart, report.RangeEnd)
	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("%-12s  %10s  %10s  %10s  %10s  %10s\n", "Date", "Import kWh", "Export kWh", "Import $", "Export $", "Position $")
	fmt.Println("------------------------------------------------------------------------")

	if len(report.Daily) == 0 {
		fmt.Println("No usage reported yet this month")
	}
	for _, d := range report.Daily {
		fmt.Printf("%-12s  %10.2f  %10.2f  %10.2f  %10.2f  %10.2f\n",
			d.Date, d.ImportKWh, d.ExportKWh, d.ImportCost, d.ExportEarnings, d.Position)
	}

	t := report.Totals
	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("Energy:       $%.2f (import $%.2f, export $%.2f)\n", t.TotalCost, t.ImportCost, t.ExportEarnings)
	fmt.Printf("Surcharge:    $%.2f\n", t.Surcharge)
	fmt.Printf("Subscription: $%.2f\n", t.Subscription)
	fmt.Printf("Position:     $%.2f (%.2f kWh in, %.2f kWh out)\n", t.Position, t.ImportKWh, t.ExportKWh)
}
