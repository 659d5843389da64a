package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listDaily bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports",
	Long:  `Displays the latest stored report for every site in the database.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listDaily, "daily", false, "Show the daily breakdown")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	reports, err := db.ListReports(context.Background())
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}

	if len(reports) == 0 {
		fmt.Println("No reports stored yet (run 'amberbalance fetch')")
		return nil
	}

	if listDaily {
		for _, stored := range reports {
			printReport(stored.Report)
		}
		return nil
	}

	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("%-28s  %-23s  %10s  %s\n", "Site", "Range", "Position", "Updated")
	fmt.Println("------------------------------------------------------------------------")
	for _, stored := range reports {
		marker := ""
		if !stored.Published {
			marker = " *"
		}
		fmt.Printf("%-28s  %s..%s  %10.2f  %s%s\n",
			stored.SiteID, stored.RangeStart, stored.RangeEnd, stored.Position(),
			humanize.Time(stored.UpdatedAt), marker)
	}
	fmt.Println("------------------------------------------------------------------------")
	fmt.Println("* not yet published")

	return nil
}
