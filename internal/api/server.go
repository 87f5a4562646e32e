package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"exam-judge/internal/config"
	"exam-judge/internal/monitor"
	"exam-judge/internal/store"
)

// Server is the HTTP front of the judging engine.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, handlers *Handlers, metrics *monitor.Metrics, db *store.DB) *Server {
	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", handlers.HandleLogin)
	mux.HandleFunc("GET /api/user-state", handlers.HandleUserState)
	mux.HandleFunc("POST /api/disqualify", handlers.HandleDisqualify)
	mux.HandleFunc("POST /api/switch-mode", handlers.HandleSwitchMode)
	mux.HandleFunc("POST /api/run-csharp", handlers.HandleRun("csharp"))
	mux.HandleFunc("POST /api/run-typescript", handlers.HandleRun("typescript"))
	mux.HandleFunc("GET /api/get-result", handlers.HandleGetResult)
	mux.HandleFunc("GET /api/audit-events", s.handleAuditEvents(db))
	mux.HandleFunc("GET /health", s.handleHealth(db))
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	// Middleware chain, outermost first.
	var handler http.Handler = mux
	handler = MetricsMiddleware(metrics)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = CORSMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAuditEvents(db *store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeError(w, "userId is required", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		if !store.ValidUserID(userID) {
			writeError(w, "invalid userId", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		if db == nil {
			writeError(w, "audit mirror not configured", "MIRROR_DISABLED", http.StatusServiceUnavailable, r)
			return
		}

		events, err := db.RecentEvents(r.Context(), userID, 50)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("querying audit events failed")
			writeError(w, "could not load audit events", "INTERNAL", http.StatusInternalServerError, r)
			return
		}
		if events == nil {
			events = []store.Event{}
		}
		writeJSON(w, http.StatusOK, AuditEventsResponse{Success: true, Events: events})
	}
}

func (s *Server) handleHealth(db *store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbOK := db == nil || db.Healthy(r.Context())

		resp := HealthResponse{
			Status:   "ok",
			Database: dbOK,
			Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		}

		if !dbOK {
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, resp)
	}
}
