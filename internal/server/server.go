package server

import (
	"context"
	"log"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/castbreeze/zapier-integration/internal/api"
	"github.com/castbreeze/zapier-integration/internal/auth"
	"github.com/castbreeze/zapier-integration/internal/castbreeze"
	"github.com/castbreeze/zapier-integration/internal/config"
	"github.com/castbreeze/zapier-integration/internal/db"
	"github.com/castbreeze/zapier-integration/internal/events"
	"github.com/castbreeze/zapier-integration/internal/openapi"
	"github.com/castbreeze/zapier-integration/internal/refresher"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router)
	openapi.RegisterRoutes(router)

	pairingStore := auth.NewPairingStore(5 * time.Minute)
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	pairingStore.StartCleanup(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg)

	gateway := castbreeze.NewGateway(cfg.CastBreezeAPIURL, time.Duration(cfg.HTTPTimeoutMs)*time.Millisecond)
	repository := castbreeze.NewRepository(dbPair)
	service := castbreeze.NewService(gateway, repository, log.Default())

	broadcaster := events.NewBroadcaster()
	events.RegisterRoutes(router, broadcaster)

	castbreeze.RegisterRoutes(router, service, broadcaster)

	var refreshRunner *refresher.Runner
	if cfg.RefreshEnabled {
		refreshRunner, err = refresher.New(log.Default(), service, cfg.RefreshSchedule, time.Duration(cfg.RefreshBufferSec)*time.Second)
		if err != nil {
			shutdownCancel()
			dbPair.Close()
			return nil, nil, err
		}
		if err := refreshRunner.Start(); err != nil {
			shutdownCancel()
			dbPair.Close()
			return nil, nil, err
		}
	}

	shutdown := func(ctx context.Context) error {
		shutdownCancel()
		if refreshRunner != nil {
			refreshRunner.Stop()
		}
		broadcaster.Close()
		if ctx == nil {
			ctx = context.Background()
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "castbreeze-connector",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
