package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magnusmanske/mixnmatch-go/internal/config"
)

var (
	cfgFile   string
	seedFile  string
	logLevel  string
	logFormat string

	appConfig *config.Config
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mnmd",
	Short: "mnmd - catalog/knowledge-base reconciliation engine",
	Long:  "mnmd dispatches catalog-matching jobs against a knowledge base and keeps existing matches in step with upstream changes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		seed, err := config.LoadSeed(seedFile)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		cfg.ApplySeed(seed)
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		appConfig = cfg
		logger = buildLogger(cfg.Log)
		return nil
	},
}

// buildLogger constructs the slog.Logger every subcommand shares, JSON in
// production and text under --log-format text, the way matcher.JobContext
// and internal/worker already expect a *slog.Logger to be threaded in
// rather than relying on slog.Default().
func buildLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, matching the
// teacher's rootCtx/rootCancel set up in cmd/bd's PersistentPreRun.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to mnmd.toml (optional; env vars and defaults apply if absent)")
	rootCmd.PersistentFlags().StringVar(&seedFile, "seed", "", "Path to a TOML file overriding task sizes, taxon ranks, and meta-item ids (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json, text (default from config)")
}

// Execute runs the root command, exiting the process on error like the
// teacher's cmd/bd main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
