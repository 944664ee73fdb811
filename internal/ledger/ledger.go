// Package ledger records which documents have been processed, in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status values stored per document.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("ledger entry not found")

// Record is one row of the documents table.
type Record struct {
	DocID          string    `json:"doc_id"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	TextItems      int       `json:"text_items"`
	FigureItems    int       `json:"figure_items"`
	DroppedFigures int       `json:"dropped_figures"`
	Error          string    `json:"error,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Ledger wraps the SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ledger: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Put inserts or replaces the record for r.DocID.
func (l *Ledger) Put(ctx context.Context, r Record) error {
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, source, status, text_items, figure_items, dropped_figures, error, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			source = excluded.source,
			status = excluded.status,
			text_items = excluded.text_items,
			figure_items = excluded.figure_items,
			dropped_figures = excluded.dropped_figures,
			error = excluded.error,
			processed_at = excluded.processed_at`,
		r.DocID, r.Source, r.Status, r.TextItems, r.FigureItems, r.DroppedFigures, r.Error,
		r.ProcessedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording %s: %w", r.DocID, err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, docID string) (*Record, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT doc_id, source, status, text_items, figure_items, dropped_figures, error, processed_at
		FROM documents WHERE doc_id = ?`, docID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", docID, err)
	}
	return r, nil
}

// Done reports whether docID finished processing, fully or partially.
func (l *Ledger) Done(ctx context.Context, docID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE doc_id = ? AND status IN (?, ?)`,
		docID, StatusCompleted, StatusPartial).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", docID, err)
	}
	return n > 0, nil
}

// List returns all records, most recent first.
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT doc_id, source, status, text_items, figure_items, dropped_figures, error, processed_at
		FROM documents ORDER BY processed_at DESC, doc_id`)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (l *Ledger) Delete(ctx context.Context, docID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("deleting %s: %w", docID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var r Record
	var processed string
	if err := s.Scan(&r.DocID, &r.Source, &r.Status, &r.TextItems, &r.FigureItems, &r.DroppedFigures, &r.Error, &processed); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, processed); err == nil {
		r.ProcessedAt = t
	}
	return &r, nil
}
