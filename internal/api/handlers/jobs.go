package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dvloznov/statement-converter/internal/api/middleware"
	"github.com/dvloznov/statement-converter/internal/jobs"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/metrics"
	"github.com/dvloznov/statement-converter/internal/pipeline"
	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/rs/zerolog"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil || job.UserID != middleware.GetUserID(ctx) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
// Only the caller's jobs are listed.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		SessionID: query.Get("session_id"),
		UserID:    middleware.GetUserID(ctx),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// NewConversionJobHandler returns the queue handler that runs a session's
// conversion. Per-file failures end up on the session, so the job only fails
// when the conversion could not start at all.
func NewConversionJobHandler(registry *session.Registry, converter *pipeline.Converter, m *metrics.Metrics, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		convJob, ok := job.(*jobs.ConversionJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		jobLog := log.With().
			Str("job_id", convJob.JobID).
			Str("session_id", convJob.SessionID).
			Logger()
		ctx = logger.WithContext(ctx, jobLog)

		s, err := registry.Get(convJob.SessionID)
		if err != nil {
			return err
		}

		m.JobStarted()
		defer m.JobFinished()

		jobLog.Info().Msg("Processing conversion job")

		if err := converter.Convert(ctx, s); err != nil {
			if errors.Is(err, pipeline.ErrQuotaExceeded) || errors.Is(err, pipeline.ErrNotReady) {
				jobLog.Warn().Err(err).Msg("Conversion refused")
			} else {
				jobLog.Error().Err(err).Msg("Conversion failed")
			}
			return err
		}

		snap := s.Snapshot()
		jobLog.Info().
			Str("state", string(snap.State)).
			Int("transactions", len(snap.Transactions)).
			Msg("Conversion job completed")
		return nil
	}
}
