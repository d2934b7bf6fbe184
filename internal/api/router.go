// Package api wires the HTTP handlers and middleware of the converter service.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/statement-converter/internal/api/handlers"
	"github.com/dvloznov/statement-converter/internal/api/middleware"
	"github.com/dvloznov/statement-converter/internal/metrics"
	"github.com/rs/zerolog"
)

// Config lists the handlers served by NewRouter. Usage and MetricsHandler
// are optional.
type Config struct {
	Sessions       *handlers.SessionsHandler
	Jobs           *handlers.JobsHandler
	Usage          *handlers.UsageHandler
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Log            zerolog.Logger
}

// NewRouter builds the service mux wrapped in the middleware chain.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", cfg.Sessions.CreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", cfg.Sessions.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", cfg.Sessions.ResetSession)
	mux.HandleFunc("PUT /api/sessions/{id}/files/{fileID}/password", cfg.Sessions.SetPassword)
	mux.HandleFunc("POST /api/sessions/{id}/convert", cfg.Sessions.Convert)
	mux.HandleFunc("GET /api/sessions/{id}/export", cfg.Sessions.Export)
	mux.HandleFunc("POST /api/sessions/{id}/goal-plan", cfg.Sessions.GoalPlan)
	mux.HandleFunc("GET /api/sessions/{id}/events", cfg.Sessions.Events)

	mux.HandleFunc("GET /api/jobs", cfg.Jobs.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", cfg.Jobs.GetJob)

	if cfg.Usage != nil {
		mux.HandleFunc("GET /api/usage", cfg.Usage.GetUsage)
		mux.HandleFunc("GET /api/usage/history", cfg.Usage.GetHistory)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Metrics sits directly on the mux so it sees the matched pattern.
	return middleware.Recovery(cfg.Log)(
		middleware.RequestID(
			middleware.Logger(cfg.Log)(
				middleware.CORS(
					middleware.Auth(
						middleware.Metrics(cfg.Metrics)(mux),
					),
				),
			),
		),
	)
}
