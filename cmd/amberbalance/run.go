package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/amberbalance/internal/publisher"
	"github.com/jgoulah/amberbalance/internal/telemetry"
)

var runTrace bool

var runCmd = &cobra.Command{
	Use:   "run [site...]",
	Short: "Keep every site's position current",
	Long: `Runs until interrupted, refreshing each site on the configured poll interval
(hourly by default). Every successful refresh is stored in the database and, when
configured, pushed to Home Assistant and MQTT. Send SIGHUP to refresh all sites now.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Write OpenTelemetry spans to stderr")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	if runTrace {
		shutdown, err := telemetry.InitTracer("amberbalance", version, os.Stderr)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg, log)
	sites, err := resolveSites(ctx, cfg, client, args)
	if err != nil {
		return err
	}

	reporters, err := newReporters(cfg, client, sites, log)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	pub, err := publisher.New(cfg.GetName(), cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	for _, r := range reporters {
		r.AddListener(db)
		if pub.Enabled() {
			r.AddListener(pub)
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Info("starting",
		zap.Strings("sites", sites),
		zap.Duration("poll_interval", cfg.GetPollInterval()),
		zap.Bool("publish", pub.Enabled()))

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range reporters {
		r := r
		g.Go(func() error {
			r.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				log.Info("refresh requested")
				for _, r := range reporters {
					r.Trigger()
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
