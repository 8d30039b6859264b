package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/batch"
	"github.com/couchcryptid/reseller-geocoder/internal/config"
	"github.com/couchcryptid/reseller-geocoder/internal/geocoder"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel string
	mode     string
	workers  int
	delay    time.Duration
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve reseller addresses to coordinates",
	Long: `
geocode resolves free-form reseller addresses to latitude/longitude using the
configured providers and coordinate cache. Configuration is read from the
environment (and an optional .env file), the same variables the service uses.

Batches run sequentially by default, pausing between provider-bound addresses
to respect free-tier rate limits.
`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr (debug, info, warn, error)")
	f.StringVar(&opts.mode, "mode", string(batch.Sequential), "batch pacing: sequential or pooled")
	f.IntVar(&opts.workers, "workers", 0, "pooled mode worker count (default BATCH_WORKERS)")
	f.DurationVar(&opts.delay, "delay", 0, "sequential mode delay between addresses (default BATCH_DELAY)")

	rootCmd.AddCommand(resolveCmd, batchCmd)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads the environment and applies the command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.BatchMode = opts.mode
	if cmd.Flags().Changed("workers") {
		cfg.BatchWorkers = opts.workers
	}
	if cmd.Flags().Changed("delay") {
		cfg.BatchDelay = opts.delay
	}
	return cfg, nil
}

// openService loads configuration and wires a geocoder. The caller closes it.
func openService(ctx context.Context, cmd *cobra.Command) (*geocoder.Service, *slog.Logger, error) {
	logger := newLogger(opts.logLevel)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	svc, err := geocoder.New(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		return nil, nil, err
	}
	return svc, logger, nil
}
