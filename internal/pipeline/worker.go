package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/figweave/internal/bundle"
	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/ledger"
	"github.com/dgallion1/figweave/internal/pathstore"
)

// Publisher mirrors stored documents to an external service.
type Publisher interface {
	Publish(ctx context.Context, doc *dataset.Document) error
}

var _ Publisher = (*pathstore.Sink)(nil)

// Worker processes a single bundle job end to end.
type Worker struct {
	proc    *Processor
	store   *dataset.FileStore
	ledger  *ledger.Ledger
	publish Publisher
	stats   *JobStats
	log     *slog.Logger

	timeout time.Duration
	sleep   func(context.Context, time.Duration) error
}

// WorkerDeps groups the collaborators of a Worker. Ledger, Publisher and
// Stats are optional.
type WorkerDeps struct {
	Processor *Processor
	Store     *dataset.FileStore
	Ledger    *ledger.Ledger
	Publisher Publisher
	Stats     *JobStats
	Timeout   time.Duration
}

func NewWorker(deps WorkerDeps, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		proc:    deps.Processor,
		store:   deps.Store,
		ledger:  deps.Ledger,
		publish: deps.Publisher,
		stats:   deps.Stats,
		log:     log,
		timeout: deps.Timeout,
		sleep:   sleepCtx,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	start := time.Now()
	docID := bundle.DocumentID(job.Filename)
	job.SetDocID(docID)
	log := w.log.With("job_id", job.ID, "doc_id", docID)

	defer func() {
		job.releaseUpload()
		if w.stats != nil {
			snap := job.Snapshot()
			w.stats.Record(snap.Status, time.Since(start), snap.Progress.FigureItems)
		}
	}()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	// Phase 0: Skip documents already in the ledger.
	if !job.Force && w.ledger != nil {
		done, err := w.ledger.Done(ctx, docID)
		if err != nil {
			log.Warn("ledger check failed, proceeding", "error", err)
		} else if done {
			log.Info("already processed, skipping")
			job.SetStatus(StatusSkipped, "ledger")
			return
		}
	}

	// Phases 1-3: Extract, walk, materialize.
	doc, st, err := w.proc.process(ctx, job.path, job.Filename, func(s JobStatus) {
		job.SetStatus(s, string(s))
	})
	job.SetStats(st)
	if err != nil {
		log.Error("processing failed", "error", err)
		job.AddError(err.Error())
		w.record(ctx, log, job, st, ledger.StatusFailed, err)
		job.SetStatus(StatusFailed, "processing")
		return
	}
	if st.SourcesFailed > 0 {
		job.AddError(fmt.Sprintf("%d of %d sources failed to parse", st.SourcesFailed, st.Sources))
	}

	// Phase 4: Store.
	job.SetStatus(StatusStoring, "storing")
	if err := w.store.Write(doc); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		w.record(ctx, log, job, st, ledger.StatusFailed, err)
		job.SetStatus(StatusFailed, "storing")
		return
	}

	partial := st.SourcesFailed > 0
	if w.publish != nil {
		err := withRetry(ctx, w.sleep, func() error {
			return w.publish.Publish(ctx, doc)
		})
		if err != nil {
			log.Warn("publish failed", "error", err)
			job.AddError(fmt.Sprintf("publish: %s", err))
			partial = true
		}
	}

	if partial {
		w.record(ctx, log, job, st, ledger.StatusPartial, nil)
		job.SetStatus(StatusPartial, "done")
		return
	}
	w.record(ctx, log, job, st, ledger.StatusCompleted, nil)
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) record(ctx context.Context, log *slog.Logger, job *Job, st Stats, status string, cause error) {
	if w.ledger == nil {
		return
	}
	rec := ledger.Record{
		DocID:          job.DocID,
		Source:         job.Filename,
		Status:         status,
		TextItems:      st.TextItems,
		FigureItems:    st.FigureItems,
		DroppedFigures: st.FiguresDropped,
		ProcessedAt:    time.Now().UTC(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	// A cancelled job still gets its row written.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := w.ledger.Put(ctx, rec); err != nil {
		log.Error("ledger write failed", "error", err)
		job.AddError(fmt.Sprintf("ledger: %s", err))
	}
}
