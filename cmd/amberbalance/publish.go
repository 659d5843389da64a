package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/amberbalance/internal/database"
	"github.com/jgoulah/amberbalance/internal/publisher"
)

var (
	publishSite string
	publishAll  bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored reports to Home Assistant",
	Long:  `Reads the stored report for each site from the database and publishes it to Home Assistant via HTTP API and/or MQTT.`,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishSite, "site", "", "Only publish this site")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all reports (ignore published flag)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pub, err := publisher.New(cfg.GetName(), cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	if !pub.Enabled() {
		return fmt.Errorf("neither Home Assistant nor MQTT is enabled in config")
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	var reports []database.StoredReport
	if publishAll {
		reports, err = db.ListReports(ctx)
	} else {
		reports, err = db.ListUnpublishedReports(ctx)
	}
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}

	published := 0
	total := 0
	for _, stored := range reports {
		if publishSite != "" && stored.SiteID != publishSite {
			continue
		}
		total++

		fmt.Printf("Publishing %s (%s..%s, $%.2f)... ", stored.SiteID, stored.RangeStart, stored.RangeEnd, stored.Position())
		if err := pub.Publish(ctx, stored.Report); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}

		if err := db.MarkPublished(ctx, stored.SiteID); err != nil {
			fmt.Printf("✓ (warning: failed to mark as published: %v)\n", err)
		} else {
			fmt.Printf("✓\n")
		}
		published++
	}

	if total == 0 {
		fmt.Println("No unpublished reports found")
		return nil
	}

	fmt.Printf("\nSuccessfully published %d/%d reports\n", published, total)
	return nil
}
