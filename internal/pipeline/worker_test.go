package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/ledger"
	"github.com/dgallion1/figweave/internal/materialize"
	"github.com/dgallion1/figweave/internal/pathstore"
)

type fakePublisher struct {
	mu    sync.Mutex
	errs  []error
	calls int
	docs  []string
}

func (p *fakePublisher) Publish(ctx context.Context, doc *dataset.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return err
		}
	}
	p.docs = append(p.docs, doc.DocID)
	return nil
}

type workerEnv struct {
	worker *Worker
	store  *dataset.FileStore
	ledger *ledger.Ledger
	stats  *JobStats
	in     string
}

func newWorkerEnv(t *testing.T, pub Publisher) *workerEnv {
	t.Helper()
	data := t.TempDir()
	store, err := dataset.NewFileStore(data)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	l, err := ledger.Open(context.Background(), filepath.Join(data, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	stats := NewJobStats(time.Hour)
	proc := newTestProcessor(t, materialize.NewFileMaterializer(store.FiguresDir(), "", nil))
	w := NewWorker(WorkerDeps{
		Processor: proc,
		Store:     store,
		Ledger:    l,
		Publisher: pub,
		Stats:     stats,
		Timeout:   time.Minute,
	}, nil)
	w.sleep = func(context.Context, time.Duration) error { return nil }
	return &workerEnv{worker: w, store: store, ledger: l, stats: stats, in: t.TempDir()}
}

func (e *workerEnv) archive(t *testing.T, name string, files map[string]string) string {
	return writeTarGz(t, e.in, name, files)
}

func TestWorker_CompletesAndRecords(t *testing.T) {
	pub := &fakePublisher{}
	env := newWorkerEnv(t, pub)
	path := env.archive(t, "2301.01234.tar.gz", map[string]string{"main.tex": catPaper, "fig1.png": "png"})

	job := NewJob(path, "2301.01234.tar.gz", false, false)
	env.worker.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.DocID != "2301_01234" || snap.Progress.FigureItems != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	doc, err := env.store.Read("2301_01234")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(doc.Entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(doc.Entries))
	}
	if _, err := env.store.FigurePath("2301_01234_fig1.png"); err != nil {
		t.Errorf("expected stored figure: %v", err)
	}

	rec, err := env.ledger.Get(context.Background(), "2301_01234")
	if err != nil {
		t.Fatalf("ledger.Get: %v", err)
	}
	if rec.Status != ledger.StatusCompleted || rec.FigureItems != 1 {
		t.Errorf("unexpected ledger record %+v", rec)
	}
	if len(pub.docs) != 1 || pub.docs[0] != "2301_01234" {
		t.Errorf("expected one publish, got %v", pub.docs)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected non-temporary archive kept: %v", err)
	}
	if got := env.stats.Snapshot().ByStatus[StatusCompleted]; got != 1 {
		t.Errorf("expected one completed sample, got %d", got)
	}
}

func TestWorker_SkipsProcessedUnlessForced(t *testing.T) {
	env := newWorkerEnv(t, nil)
	path := env.archive(t, "paper.tar.gz", map[string]string{"main.tex": catPaper})

	first := NewJob(path, "paper.tar.gz", false, false)
	env.worker.Process(context.Background(), first)
	if s := first.Snapshot().Status; s != StatusCompleted {
		t.Fatalf("expected completed, got %q", s)
	}

	second := NewJob(path, "paper.tar.gz", false, false)
	env.worker.Process(context.Background(), second)
	if s := second.Snapshot().Status; s != StatusSkipped {
		t.Errorf("expected skipped, got %q", s)
	}

	forced := NewJob(path, "paper.tar.gz", true, false)
	env.worker.Process(context.Background(), forced)
	if s := forced.Snapshot().Status; s != StatusCompleted {
		t.Errorf("expected forced job completed, got %q", s)
	}
}

func TestWorker_RetriesRetryablePublish(t *testing.T) {
	pub := &fakePublisher{errs: []error{&pathstore.RetryableError{StatusCode: 503, Err: errors.New("busy")}}}
	env := newWorkerEnv(t, pub)
	path := env.archive(t, "paper.tar.gz", map[string]string{"main.tex": catPaper})

	job := NewJob(path, "paper.tar.gz", false, false)
	env.worker.Process(context.Background(), job)
	if s := job.Snapshot().Status; s != StatusCompleted {
		t.Errorf("expected completed after retry, got %q", s)
	}
	if pub.calls != 2 {
		t.Errorf("expected 2 publish attempts, got %d", pub.calls)
	}
}

func TestWorker_PublishFailureIsPartial(t *testing.T) {
	pub := &fakePublisher{errs: []error{errors.New("unauthorized")}}
	env := newWorkerEnv(t, pub)
	path := env.archive(t, "paper.tar.gz", map[string]string{"main.tex": catPaper})

	job := NewJob(path, "paper.tar.gz", false, false)
	env.worker.Process(context.Background(), job)
	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Errorf("expected partial, got %q", snap.Status)
	}
	if pub.calls != 1 {
		t.Errorf("expected no retry for a permanent error, got %d calls", pub.calls)
	}
	if !env.store.Exists("paper") {
		t.Error("expected document stored despite publish failure")
	}
	rec, err := env.ledger.Get(context.Background(), "paper")
	if err != nil || rec.Status != ledger.StatusPartial {
		t.Errorf("expected partial ledger record, got %+v, %v", rec, err)
	}
}

func TestWorker_FailureRecordedAndRetriedLater(t *testing.T) {
	env := newWorkerEnv(t, nil)
	path := env.archive(t, "broken.tar.gz", map[string]string{"report.docx": "not a zip"})

	job := NewJob(path, "broken.tar.gz", false, false)
	env.worker.Process(context.Background(), job)
	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if len(snap.Progress.Errors) == 0 {
		t.Error("expected an error message")
	}
	rec, err := env.ledger.Get(context.Background(), "broken")
	if err != nil || rec.Status != ledger.StatusFailed || rec.Error == "" {
		t.Errorf("expected failed ledger record, got %+v, %v", rec, err)
	}

	// Failed documents are not skipped on the next run.
	again := NewJob(path, "broken.tar.gz", false, false)
	env.worker.Process(context.Background(), again)
	if s := again.Snapshot().Status; s != StatusFailed {
		t.Errorf("expected reprocessing to fail again, got %q", s)
	}
}

func TestWorker_RemovesTemporaryArchive(t *testing.T) {
	env := newWorkerEnv(t, nil)
	path := env.archive(t, "paper.tar.gz", map[string]string{"main.tex": catPaper})

	job := NewJob(path, "paper.tar.gz", false, true)
	env.worker.Process(context.Background(), job)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected temporary archive removed, got %v", err)
	}
}
