package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/docrank/internal/config"
	"github.com/dgallion1/docrank/internal/pipeline"
	"github.com/dgallion1/docrank/internal/stats"
	"github.com/dgallion1/docrank/internal/store"
)

// ModelStats names a capability backend and its latency window.
type ModelStats struct {
	Name  string
	Model string
	Stats *stats.LatencyStats
}

// Server is the HTTP API server for docrank.
type Server struct {
	router   chi.Router
	analyzer *pipeline.Analyzer
	ranker   *pipeline.Ranker
	files    *store.Store
	models   []ModelStats
	validate *validator.Validate
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(analyzer *pipeline.Analyzer, ranker *pipeline.Ranker, files *store.Store, models []ModelStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		analyzer: analyzer,
		ranker:   ranker,
		files:    files,
		models:   models,
		validate: validator.New(),
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(Recoverer(s.log))
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Post("/upload", s.handleUpload)
	r.Post("/upload/batch", s.handleBatchUpload)
	r.Post("/role_query", s.handleRoleQuery)

	r.Get("/files", s.handleListFiles)
	r.Get("/uploads/{filename}", s.handleServeFile)

	r.Get("/api/stats/models", s.handleModelStats)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Not found", http.StatusNotFound)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "PDF Analysis API is running",
		"version": "1.0.0",
	})
}
