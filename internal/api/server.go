// Package api serves stored proficiency reports over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ptscore/domain/core"
	"ptscore/internal"
	"ptscore/ports"
)

// Server exposes the report repository as a read-only JSON API
type Server struct {
	router  *chi.Mux
	reports ports.ReportRepository
	metrics http.Handler
	logger  *internal.Logger
}

// Config holds server dependencies
type Config struct {
	Reports ports.ReportRepository
	// Metrics is mounted on /metrics when non-nil.
	Metrics http.Handler
	Logger  *internal.Logger
}

// NewServer creates a server with its routes registered
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = internal.Discard()
	}
	s := &Server{
		router:  chi.NewRouter(),
		reports: cfg.Reports,
		metrics: cfg.Metrics,
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api/informes", func(r chi.Router) {
		r.Get("/", s.handleListReports)
		r.Get("/{code}", s.handleGetDocument)
		r.Get("/{code}/evaluaciones", s.handleGetAuditRows)
	})
}

// ServeHTTP makes the server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := s.reports.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []ports.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	code, err := core.ParseRunCode(chi.URLParam(r, "code"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	doc, err := s.reports.GetDocument(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetAuditRows(w http.ResponseWriter, r *http.Request) {
	code, err := core.ParseRunCode(chi.URLParam(r, "code"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	rows, err := s.reports.GetAuditRows(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if core.IsNotFoundError(err) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	s.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
