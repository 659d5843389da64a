package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/amberbalance/internal/config"
)

var sitesSave bool

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the sites visible to the API token",
	Long: `Queries the Amber API for every site the configured token can read.
With --save the discovered site ids are written to the config file.`,
	RunE: runSites,
}

func init() {
	sitesCmd.Flags().BoolVar(&sitesSave, "save", false, "Save discovered sites to the config file")
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Token == "" {
		return fmt.Errorf("no API token configured. Add token to config.yaml or set AMBER_TOKEN")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	sites, err := newClient(cfg, log).DiscoverSites(context.Background())
	if err != nil {
		return fmt.Errorf("discovering sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Println("No sites found")
		return nil
	}

	for _, site := range sites {
		fmt.Println(site)
	}

	if sitesSave {
		if err := config.SaveSites(getConfigPath(), sites); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("✓ Saved %d site(s) to %s\n", len(sites), getConfigPath())
	}

	return nil
}
