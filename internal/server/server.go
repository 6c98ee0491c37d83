// Package server exposes the REST surface: the chat proxy, account login,
// and the knowledge/session sync endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"secondmind/internal/config"
	"secondmind/internal/fallback"
	"secondmind/internal/metrics"
	"secondmind/internal/providers"
	"secondmind/internal/queue"
	"secondmind/internal/storage"
)

// brainHeader selects the account a request operates on. The app is
// single-user, so everything defaults to one brain.
const (
	brainHeader  = "X-Brain-ID"
	defaultBrain = "main"
)

// ChatRunner is what the chat handler needs from the fallback orchestrator.
type ChatRunner interface {
	Run(ctx context.Context, req providers.ChatRequest) (fallback.Result, error)
	Candidates() []fallback.Candidate
}

type Server struct {
	store   *storage.Store
	queue   *queue.StreamQueue
	runner  ChatRunner
	ai      config.AIConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Config struct {
	Store   *storage.Store
	Queue   *queue.StreamQueue
	Runner  ChatRunner
	AI      config.AIConfig
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Server{
		store:   cfg.Store,
		queue:   cfg.Queue,
		runner:  cfg.Runner,
		ai:      cfg.AI,
		logger:  cfg.Logger,
		metrics: m,
	}
}

func (s *Server) Router(healthPath, metricsPath string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get(healthPath, s.handleHealth)
	r.Method(http.MethodGet, metricsPath, promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/chat", s.handleChat)
		api.Get("/chat", s.handleChatDiag)

		api.Post("/auth/login", s.handleLogin)

		api.Get("/knowledge", s.handleListKnowledge)
		api.Put("/knowledge", s.handleSyncKnowledge)
		api.Delete("/knowledge/{id}", s.handleDeleteKnowledge)
		api.Get("/knowledge/export", s.handleExportKnowledge)
		api.Post("/knowledge/import", s.handleImportKnowledge)

		api.Get("/sessions", s.handleListSessions)
		api.Put("/sessions", s.handleSyncSession)
		api.Delete("/sessions/{id}", s.handleDeleteSession)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func brainID(r *http.Request) string {
	if v := r.Header.Get(brainHeader); v != "" {
		return v
	}
	return defaultBrain
}
