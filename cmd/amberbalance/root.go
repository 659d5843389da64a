package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jgoulah/amberbalance/internal/amber"
	"github.com/jgoulah/amberbalance/internal/config"
	"github.com/jgoulah/amberbalance/internal/database"
	"github.com/jgoulah/amberbalance/internal/logging"
	"github.com/jgoulah/amberbalance/internal/reporter"
)

const version = "0.3.1"

var (
	cfgFile  string
	dbPath   string
	logLevel string
	devLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "amberbalance",
	Short: "Track the month-to-date position of an Amber Electric account",
	Long: `AmberBalance pulls interval usage from the Amber Electric API, prices each day
including the daily network surcharge and the amortized monthly subscription, and
reports the running month-to-date position. Reports can be pushed to Home Assistant
over HTTP or MQTT and the latest report per site is kept in a local SQLite database.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev-log", false, "human-readable console logs")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads and validates the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logLevel, devLog)
}

func newClient(cfg *config.Config, log *zap.Logger) *amber.Client {
	return amber.New(cfg.Token,
		amber.WithBaseURL(cfg.GetBaseURL()),
		amber.WithTimeout(cfg.GetRequestTimeout()),
		amber.WithLogger(log.Named("amber")),
	)
}

// resolveSites picks the sites to work on: explicit arguments, then the
// config, then discovery with the token
func resolveSites(ctx context.Context, cfg *config.Config, client *amber.Client, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if sites := cfg.Sites(); len(sites) > 0 {
		return sites, nil
	}

	fmt.Println("No site configured, discovering sites...")
	sites, err := client.DiscoverSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering sites: %w", err)
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("no sites found for this token")
	}
	return sites, nil
}

// newReporters builds one reporter per site, each owning its own cache
func newReporters(cfg *config.Config, client *amber.Client, sites []string, log *zap.Logger) ([]*reporter.Reporter, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reporters := make([]*reporter.Reporter, 0, len(sites))
	for _, site := range sites {
		reporters = append(reporters, reporter.New(site, client.Site(site).Fetch, reporter.Options{
			Model:        cfg.CostModel(),
			Location:     loc,
			PollInterval: cfg.GetPollInterval(),
			Logger:       log,
		}))
	}
	return reporters, nil
}
