package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/magnusmanske/mixnmatch-go/internal/config"
	"github.com/magnusmanske/mixnmatch-go/internal/jobqueue"
	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/matcher"
	"github.com/magnusmanske/mixnmatch-go/internal/metrics"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/mysql"
	"github.com/magnusmanske/mixnmatch-go/internal/wdrc"
	"github.com/magnusmanske/mixnmatch-go/internal/worker"
)

var metricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Job-dispatch worker loop",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the job-dispatch worker loop and the KB-change reconciler until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runWorker(ctx, appConfig)
	},
}

func init() {
	workerRunCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve /metrics on")
	workerCmd.AddCommand(workerRunCmd)
	rootCmd.AddCommand(workerCmd)
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.TaxonRanks != nil {
		matcher.SetTaxonRanks(cfg.TaxonRanks)
	}
	if len(cfg.MetaItems) > 0 {
		kbclient.MetaItems = cfg.MetaItems
	}

	store, err := mysql.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("worker run: open storage: %w", err)
	}
	defer store.Close()

	kb, err := kbclient.New(cfg.KB.AsClientConfig())
	if err != nil {
		return fmt.Errorf("worker run: build kb client: %w", err)
	}
	defer kb.Close()

	queue := jobqueue.New(store, cfg.ResolvedTaskSizes())
	reconciler := &wdrc.Reconciler{Store: store, KB: kb}

	w := &worker.Worker{
		Queue:      queue,
		Store:      store,
		KB:         kb,
		Reconciler: reconciler,
		Log:        logger,
		Config: worker.Config{
			MaxConcurrent:     cfg.Worker.MaxConcurrent,
			PollInterval:      cfg.Worker.PollInterval,
			WatchdogInterval:  cfg.Worker.WatchdogInterval,
			WatchdogThreshold: cfg.Worker.WatchdogThreshold,
			ReconcileInterval: cfg.Worker.ReconcileInterval,
		},
	}

	srv := &http.Server{Addr: metricsAddr, Handler: metricsMux()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker run: metrics server failed", "error", err)
		}
	}()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	logger.Info("worker run: starting", "metrics_addr", metricsAddr)
	err = w.Run(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		logger.Info("worker run: shutting down")
		return nil
	}
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
