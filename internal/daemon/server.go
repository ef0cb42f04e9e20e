// Package daemon is the operational sidecar: a small HTTP service that
// keeps one broker's instrument cache fresh and exposes health, system
// stats, and manual refresh/backup triggers.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/internal/reliability"
	"github.com/tradetools/ttconnect/store"
)

// Config holds the daemon's wiring.
type Config struct {
	Log      zerolog.Logger
	BrokerID string
	Store    *store.Store
	Fetch    store.FetchFunc
	// Backups is nil when no bucket is configured; the backup endpoint
	// then reports the feature unavailable.
	Backups *reliability.Backups
	Port    int
}

// Server is the daemon's HTTP surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	store  *store.Store
	system *SystemHandlers
}

// New builds the router and handlers. Nothing listens until Start.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "daemon").Logger(),
		store:  cfg.Store,
		system: NewSystemHandlers(cfg.Log, cfg.BrokerID, cfg.Store, cfg.Fetch, cfg.Backups),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system", s.system.HandleSystem)
		r.Post("/refresh", s.system.HandleRefresh)
		r.Post("/backup", s.system.HandleBackup)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the handler tree (tests mount it on httptest servers).
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting daemon")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down daemon")
	return s.server.Shutdown(ctx)
}

// handleHealth reports liveness plus a database ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().QuickCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
