package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-converter/internal/api"
	"github.com/dvloznov/statement-converter/internal/api/events"
	"github.com/dvloznov/statement-converter/internal/api/handlers"
	"github.com/dvloznov/statement-converter/internal/config"
	infraBQ "github.com/dvloznov/statement-converter/internal/infra/bigquery"
	"github.com/dvloznov/statement-converter/internal/jobs/inmemory"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/metrics"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/pipeline"
	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/dvloznov/statement-converter/internal/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	flag.Parse()
	cfg.Server.Port = *port

	log := logger.NewWithOptions(logger.Options{
		Format: logger.Format(cfg.Log.Format),
		Level:  cfg.Log.Level,
	})

	if err := cfg.RequireGemini(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	// Metrics
	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Usage ledger
	var ledger usage.Ledger = usage.NewMemoryLedger()
	if cfg.BigQuery.UsesBigQuery() {
		bq, err := infraBQ.NewLedger(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery ledger")
		}
		defer bq.Close()
		if _, err := bq.EnsureSchema(ctx, "api"); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply BigQuery migrations")
		}
		ledger = bq
	} else {
		log.Warn().Msg("No GCP project configured - conversion history is kept in memory")
	}
	gate := usage.NewGate(ledger, cfg.Usage.MonthlyLimit)

	// Model and pipeline
	model, err := pipeline.NewGeminiClient(ctx, pipeline.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		Metrics:           m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	rasterizer := pdfdoc.NewRasterizer()
	if !rasterizer.IsAvailable() {
		log.Warn().Err(pdfdoc.ErrRendererUnavailable).Msg("Conversions will fail until the renderer is installed")
	}

	converter := pipeline.NewConverter(
		pipeline.ProbeFunc(pdfdoc.Probe),
		pipeline.NewFilePipeline(rasterizer, pipeline.NewExtractor(model)),
		pipeline.NewAnalyst(model),
		pipeline.WithUsageGate(gate),
		pipeline.WithMetrics(m),
	)

	// Initialize job infrastructure
	registry := session.NewRegistry()
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Conversion.QueueSize, jobStore, cfg.Conversion.Workers, cfg.Conversion.MaxRetries)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.Conversion.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, handlers.NewConversionJobHandler(registry, converter, m, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	go registry.Sweep(workerCtx, time.Minute, cfg.Conversion.SessionTTL)

	hub := events.NewHub(log)

	handler := api.NewRouter(api.Config{
		Sessions:       handlers.NewSessionsHandler(registry, converter, jobQueue, hub, log),
		Jobs:           handlers.NewJobsHandler(jobStore, log),
		Usage:          handlers.NewUsageHandler(gate, log),
		Metrics:        m,
		MetricsHandler: metricsHandler,
		Log:            log,
	})

	// WriteTimeout is left unset so websocket streams and uploads are not cut off.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("model", cfg.Gemini.Model).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight conversions finish before the worker context goes away.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
