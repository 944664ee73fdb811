package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/figweave/internal/bundle"
	"github.com/dgallion1/figweave/internal/config"
	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/ledger"
	"github.com/dgallion1/figweave/internal/materialize"
	"github.com/dgallion1/figweave/internal/pathstore"
	"github.com/dgallion1/figweave/internal/pipeline"
)

// printError writes to stderr, or stdout when stderr is unusable.
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		dir     = flag.String("dir", "", "directory of source bundles to process (required)")
		out     = flag.String("out", "", "dataset output directory (defaults to DATA_DIR)")
		workers = flag.Int("workers", 0, "bundles processed in parallel (defaults to WORKER_COUNT)")
		force   = flag.Bool("force", false, "reprocess bundles already in the ledger")
		index   = flag.String("index", "", "write an XLSX figure index to this path")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Load()
	if *out != "" {
		cfg.DataDir = *out
		cfg.LedgerPath = filepath.Join(*out, "ledger.db")
		cfg.WorkDir = filepath.Join(*out, "work")
	}
	if *workers > 0 {
		cfg.WorkerCount = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dir, *force, *index, logger); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, dir string, force bool, index string, log *slog.Logger) error {
	archives, err := findBundles(dir)
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		log.Warn("no bundles found", "dir", dir)
		return nil
	}

	store, err := dataset.NewFileStore(cfg.DataDir)
	if err != nil {
		return err
	}
	led, err := ledger.Open(ctx, cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	deps := pipeline.WorkerDeps{Store: store, Ledger: led, Timeout: cfg.ProcessTimeout, Stats: pipeline.NewJobStats(24 * time.Hour)}
	if cfg.PublishEnabled() {
		ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		defer ps.Close()
		deps.Publisher = pathstore.NewSink(ps)
	}
	deps.Processor = pipeline.NewProcessor(pipeline.ProcessorConfig{
		WorkDir:                  cfg.WorkDir,
		MaxIncludeDepth:          cfg.MaxIncludeDepth,
		MaxConcurrentMaterialize: cfg.MaxConcurrentMaterialize,
		GuessExtensions:          cfg.GuessExtensions,
	}, materialize.NewFileMaterializer(store.FiguresDir(), cfg.PDFRasterizer, log), log)
	worker := pipeline.NewWorker(deps, log)

	log.Info("starting batch", "dir", dir, "bundles", len(archives), "workers", cfg.WorkerCount, "force", force)
	jobs := make([]*pipeline.Job, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.WorkerCount)
	for i, path := range archives {
		jobs[i] = pipeline.NewJob(path, filepath.Base(path), force, false)
		job := jobs[i]
		g.Go(func() error {
			worker.Process(gctx, job)
			return nil
		})
	}
	// Process records failures on the job; the group only bounds concurrency.
	_ = g.Wait()

	failed := 0
	for _, j := range jobs {
		snap := j.Snapshot()
		if snap.Status == pipeline.StatusFailed {
			failed++
			log.Warn("bundle failed", "filename", snap.Filename, "errors", snap.Progress.Errors)
		}
	}
	summary := deps.Stats.Snapshot()
	log.Info("batch complete",
		"bundles", len(jobs),
		"by_status", summary.ByStatus,
		"figures", summary.Figures,
		"p50_ms", summary.Latency.P50Ms,
		"p95_ms", summary.Latency.P95Ms,
	)

	if index != "" {
		if err := writeIndex(store, index, log); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bundles failed", failed, len(jobs))
	}
	return nil
}

// findBundles lists the supported archives under dir, sorted by path.
func findBundles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if bundle.Supported(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

func writeIndex(store *dataset.FileStore, path string, log *slog.Logger) error {
	summaries, err := store.List()
	if err != nil {
		return err
	}
	docs := make([]*dataset.Document, 0, len(summaries))
	for _, s := range summaries {
		doc, err := store.Read(s.DocID)
		if err != nil {
			log.Warn("skipping document in index", "doc_id", s.DocID, "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	rows, err := dataset.WriteFigureIndex(f, docs)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	log.Info("figure index written", "path", path, "rows", rows)
	return nil
}
