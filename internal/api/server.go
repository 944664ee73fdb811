package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/figweave/internal/config"
	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/ledger"
	"github.com/dgallion1/figweave/internal/pathstore"
	"github.com/dgallion1/figweave/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for figweave.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *dataset.FileStore
	ledger       *ledger.Ledger
	sink         *pathstore.Sink
	log          *slog.Logger
	cfg          config.Config
}

// Deps groups what the handlers read and write. Ledger and Sink are optional.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Store        *dataset.FileStore
	Ledger       *ledger.Ledger
	Sink         *pathstore.Sink
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		orchestrator: deps.Orchestrator,
		store:        deps.Store,
		ledger:       deps.Ledger,
		sink:         deps.Sink,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Post("/api/ingest/batch", s.handleBatchIngest)

		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{docID}", s.handleGetDocument)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
		r.Get("/api/figures/{name}", s.handleGetFigure)

		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
