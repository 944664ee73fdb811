package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/ledger"
	"github.com/go-chi/chi/v5"
)

// documentSummary is a stored document joined with its ledger row.
type documentSummary struct {
	dataset.Summary
	Status         string `json:"status,omitempty"`
	DroppedFigures int    `json:"dropped_figures"`
}

// handleListDocuments lists all stored documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List()
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	records := map[string]ledger.Record{}
	if s.ledger != nil {
		recs, err := s.ledger.List(r.Context())
		if err != nil {
			s.log.Warn("ledger list failed", "error", err)
		}
		for _, rec := range recs {
			records[rec.DocID] = rec
		}
	}

	docs := make([]documentSummary, 0, len(summaries))
	for _, sum := range summaries {
		d := documentSummary{Summary: sum}
		if rec, ok := records[sum.DocID]; ok {
			d.Status = rec.Status
			d.DroppedFigures = rec.DroppedFigures
		}
		docs = append(docs, d)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Read(chi.URLParam(r, "docID"))
	if err != nil {
		storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// handleDeleteDocument deletes a document, its figures, its ledger row and
// its published copy.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	ctx := r.Context()

	if err := s.store.Delete(docID); err != nil {
		storeError(w, err)
		return
	}

	ledgerDeleted := false
	if s.ledger != nil {
		if err := s.ledger.Delete(ctx, docID); err != nil {
			s.log.Warn("ledger delete failed", "doc_id", docID, "error", err)
		} else {
			ledgerDeleted = true
		}
	}

	unpublished := false
	if s.sink != nil {
		if err := s.sink.Remove(ctx, docID); err != nil {
			s.log.Warn("unpublish failed", "doc_id", docID, "error", err)
		} else {
			unpublished = true
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":         docID,
		"deleted":        true,
		"ledger_deleted": ledgerDeleted,
		"unpublished":    unpublished,
	})
}

func (s *Server) handleGetFigure(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.FigurePath(chi.URLParam(r, "name"))
	if err != nil {
		storeError(w, err)
		return
	}
	http.ServeFile(w, r, p)
}

func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, dataset.ErrInvalidID):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
