package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"queue_depth":  s.orchestrator.QueueDepth(),
		"tracked_jobs": s.orchestrator.TrackedJobs(),
		"publishing":   s.sink != nil,
	}
	if st := s.orchestrator.Stats(); st != nil {
		resp["jobs"] = st.Snapshot()
	}

	if s.ledger != nil {
		recs, err := s.ledger.List(r.Context())
		if err != nil {
			jsonError(w, "ledger unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		byStatus := map[string]int{}
		figures, dropped := 0, 0
		for _, rec := range recs {
			byStatus[rec.Status]++
			figures += rec.FigureItems
			dropped += rec.DroppedFigures
		}
		resp["ledger"] = map[string]any{
			"documents":       len(recs),
			"by_status":       byStatus,
			"figure_items":    figures,
			"dropped_figures": dropped,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
