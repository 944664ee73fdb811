package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/figweave/internal/api"
	"github.com/dgallion1/figweave/internal/config"
	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/ledger"
	"github.com/dgallion1/figweave/internal/materialize"
	"github.com/dgallion1/figweave/internal/pathstore"
	"github.com/dgallion1/figweave/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage.
	store, err := dataset.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Error("opening data dir", "error", err)
		os.Exit(1)
	}
	led, err := ledger.Open(ctx, cfg.LedgerPath)
	if err != nil {
		log.Error("opening ledger", "error", err)
		os.Exit(1)
	}

	var ps *pathstore.Client
	var sink *pathstore.Sink
	deps := pipeline.WorkerDeps{Store: store, Ledger: led, Timeout: cfg.ProcessTimeout}
	if cfg.PublishEnabled() {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		sink = pathstore.NewSink(ps)
		deps.Publisher = sink
	}

	// Initialize pipeline.
	mat := materialize.NewFileMaterializer(store.FiguresDir(), cfg.PDFRasterizer, log)
	deps.Processor = pipeline.NewProcessor(pipeline.ProcessorConfig{
		WorkDir:                  cfg.WorkDir,
		MaxIncludeDepth:          cfg.MaxIncludeDepth,
		MaxConcurrentMaterialize: cfg.MaxConcurrentMaterialize,
		GuessExtensions:          cfg.GuessExtensions,
	}, mat, log)
	deps.Stats = pipeline.NewJobStats(time.Hour)

	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, pipeline.NewWorker(deps, log), deps.Stats, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{Orchestrator: orch, Store: store, Ledger: led, Sink: sink}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		led.Close()
		if ps != nil {
			ps.Close()
		}
	}()

	log.Info("starting figweave", "port", cfg.Port, "data_dir", cfg.DataDir, "publishing", cfg.PublishEnabled())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
