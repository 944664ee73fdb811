package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "ledger.db")
	l, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestLedger_PutGet(t *testing.T) {
	l, _ := openTest(t)
	ctx := context.Background()

	r := Record{DocID: "2301_01234", Source: "a.tar.gz", Status: StatusCompleted, TextItems: 3, FigureItems: 2, DroppedFigures: 1}
	if err := l.Put(ctx, r); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := l.Get(ctx, "2301_01234")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.TextItems != 3 || got.FigureItems != 2 || got.DroppedFigures != 1 {
		t.Errorf("unexpected record %+v", got)
	}
	if time.Since(got.ProcessedAt) > time.Minute {
		t.Errorf("expected processed_at set, got %v", got.ProcessedAt)
	}

	r.Status = StatusFailed
	r.Error = "boom"
	if err := l.Put(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = l.Get(ctx, "2301_01234")
	if got.Status != StatusFailed || got.Error != "boom" {
		t.Errorf("expected upsert to replace, got %+v", got)
	}

	if _, err := l.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLedger_Done(t *testing.T) {
	l, _ := openTest(t)
	ctx := context.Background()

	l.Put(ctx, Record{DocID: "ok", Status: StatusCompleted})
	l.Put(ctx, Record{DocID: "part", Status: StatusPartial})
	l.Put(ctx, Record{DocID: "bad", Status: StatusFailed})

	for id, want := range map[string]bool{"ok": true, "part": true, "bad": false, "none": false} {
		got, err := l.Done(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Done(%q): expected %v, got %v", id, want, got)
		}
	}

	if err := l.Delete(ctx, "ok"); err != nil {
		t.Fatal(err)
	}
	if done, _ := l.Done(ctx, "ok"); done {
		t.Error("expected deleted record not done")
	}

	list, err := l.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 records, got %d", len(list))
	}
}

func TestLedger_MigrationsIdempotent(t *testing.T) {
	l, path := openTest(t)
	ctx := context.Background()
	v, err := l.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), v)
	}
	l.Put(ctx, Record{DocID: "keep", Status: StatusCompleted})
	l.Close()

	again, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if done, _ := again.Done(ctx, "keep"); !done {
		t.Error("expected record to survive reopen")
	}
}
