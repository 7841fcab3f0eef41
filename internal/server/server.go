// Package server exposes the debate engine over spec.md §6's REST and SSE
// surface: a chi router, request logging and panic-recovery middleware,
// and a pluggable Authenticator — grounded on the teacher's
// internal/server/server.go, generalized from a single-route OpenAI
// proxy to the full debates/usage/personalities surface.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arbiter-hq/arbiter/internal/config"
	"github.com/arbiter-hq/arbiter/internal/debate"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

// Personalities is the read-only personality catalog the discovery
// endpoints list from — satisfied by debate.PromptLibrary in production.
type Personalities interface {
	List(debateOnly bool) []debate.PersonalityInfo
}

// Server holds the HTTP router and every dependency its handlers need.
type Server struct {
	router chi.Router

	cfg           *config.Config
	debates       *debate.Service
	usage         *usage.Recorder
	personalities Personalities
	auth          Authenticator
	metrics       http.Handler
}

// New wires a Server's routes and middleware and returns it ready to use
// as an http.Handler. metricsHandler is served at GET /metrics — pass nil
// to omit the route entirely (e.g. in tests that don't care about
// scraping).
func New(cfg *config.Config, debates *debate.Service, usageRecorder *usage.Recorder, personalities Personalities, auth Authenticator, metricsHandler http.Handler) *Server {
	s := &Server{
		cfg:           cfg,
		debates:       debates,
		usage:         usageRecorder,
		personalities: personalities,
		auth:          auth,
		metrics:       metricsHandler,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(s.cors)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/debates", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/", s.handleCreateDebate)
		r.Get("/", s.handleListDebates)
		r.Get("/{id}", s.handleGetDebate)
		r.Post("/{id}/cancel", s.handleCancelDebate)
		r.Delete("/{id}", s.handleDeleteDebate)
		r.Get("/{id}/stream", s.handleStreamDebate)
	})

	r.Route("/usage", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/summary", s.handleUsageSummary)
	})

	r.Get("/personalities", s.handleListPersonalities)
	r.Get("/personalities/debate", s.handleListDebatePersonalities)

	if s.metrics != nil {
		r.Get("/metrics", s.metrics.ServeHTTP)
	}

	s.router = r
}

// cors reflects the request Origin when it appears in the configured
// allow-list, the simplest policy that satisfies spec.md §4.13's "CORS
// settings" requirement without a third dependency for a single header
// check.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.cfg.Server.CORSOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				break
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP makes Server satisfy http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
