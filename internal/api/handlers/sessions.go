package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/statement-converter/internal/api/events"
	"github.com/dvloznov/statement-converter/internal/api/middleware"
	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/export"
	"github.com/dvloznov/statement-converter/internal/jobs"
	"github.com/dvloznov/statement-converter/internal/pipeline"
	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultMaxUploadBytes bounds one multipart upload.
const DefaultMaxUploadBytes = 64 << 20

// modifiedFieldPrefix names the optional form fields carrying each file's
// modification time in Unix milliseconds, e.g. modified_statement.pdf.
const modifiedFieldPrefix = "modified_"

// SessionsHandler handles the conversion session endpoints.
type SessionsHandler struct {
	registry       *session.Registry
	converter      *pipeline.Converter
	publisher      jobs.Publisher
	hub            *events.Hub
	upgrader       websocket.Upgrader
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler. hub may be nil to
// disable the event stream.
func NewSessionsHandler(registry *session.Registry, converter *pipeline.Converter, publisher jobs.Publisher, hub *events.Hub, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		registry:  registry,
		converter: converter,
		publisher: publisher,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxUploadBytes: DefaultMaxUploadBytes,
		log:            log,
	}
}

// CreateSession handles POST /api/sessions
// It accepts multipart "files", keeps the PDFs and probes each for encryption.
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "At least one file is required")
		return
	}

	files := make([]session.StatementFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			h.log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to read upload")
			middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		files = append(files, session.StatementFile{
			Name:    fh.Filename,
			ModTime: modTime(r.MultipartForm.Value[modifiedFieldPrefix+fh.Filename]),
			Data:    data,
		})
	}

	s := h.registry.Create(middleware.GetUserID(ctx))
	if h.hub != nil {
		s.Subscribe(h.hub.Publish)
	}

	_, warning, err := h.converter.SelectFiles(ctx, s, files)
	if err != nil {
		h.registry.Delete(s.ID)
		if errors.Is(err, session.ErrNoPDFs) {
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "No PDF files were selected",
				"warning": warning,
			})
			return
		}
		h.log.Error().Err(err).Msg("Failed to select files")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.log.Info().
		Str("session_id", s.ID).
		Int("files", len(files)).
		Msg("Session created")

	middleware.WriteJSON(w, http.StatusCreated, s.Snapshot())
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s.Snapshot())
}

// ResetSession handles DELETE /api/sessions/{id}
// It discards files and results. A running conversion cannot be reset.
func (h *SessionsHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if s.State() == session.StateIdle {
		middleware.WriteJSON(w, http.StatusOK, s.Snapshot())
		return
	}
	if err := s.Reset(); err != nil {
		middleware.WriteError(w, http.StatusConflict, "Session cannot be reset while processing")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s.Snapshot())
}

// SetPassword handles PUT /api/sessions/{id}/files/{fileID}/password
func (h *SessionsHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	fileID := r.PathValue("fileID")

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.Tracker().SetPassword(fileID, req.Password); err != nil {
		middleware.WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	fs, _ := s.Tracker().Get(fileID)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"file":  fs,
		"ready": s.Tracker().IsReady(),
	})
}

// Convert handles POST /api/sessions/{id}/convert
// It validates the session and enqueues a conversion job.
func (h *SessionsHandler) Convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if st := s.State(); st != session.StateFilesSelected {
		middleware.WriteError(w, http.StatusConflict, fmt.Sprintf("Session is %s", st))
		return
	}

	if err := h.converter.Check(ctx, s); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrQuotaExceeded):
			middleware.WriteError(w, http.StatusPaymentRequired, "Monthly conversion limit reached")
		case errors.Is(err, pipeline.ErrNotReady):
			middleware.WriteError(w, http.StatusConflict, "Every password-protected file needs a password before converting")
		default:
			h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to check conversion")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to start conversion")
		}
		return
	}

	job := &jobs.ConversionJob{
		SessionID: s.ID,
		UserID:    s.UserID,
	}
	if err := h.publisher.PublishConversion(ctx, job); err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to enqueue conversion job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue conversion")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("session_id", s.ID).
		Msg("Conversion job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"session_id": s.ID,
		"status":     string(jobs.JobStatusPending),
	})
}

// Export handles GET /api/sessions/{id}/export?format=csv|tsv|xlsx
func (h *SessionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.State() != session.StateSuccess {
		middleware.WriteError(w, http.StatusConflict, "No transactions to export")
		return
	}

	data, err := export.Render(format, s.Transactions())
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to render export")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export transactions")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GoalPlan handles POST /api/sessions/{id}/goal-plan
func (h *SessionsHandler) GoalPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var goal domain.GoalInput
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := h.converter.PlanGoal(ctx, s, goal)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidGoal):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, session.ErrInvalidTransition):
			middleware.WriteError(w, http.StatusConflict, "Goal plans need converted transactions")
		default:
			h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to generate goal plan")
			middleware.WriteError(w, http.StatusBadGateway, pipeline.UserMessage(err))
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, plan)
}

// Events handles GET /api/sessions/{id}/events
// It upgrades to a websocket, sends the current snapshot, then streams
// file and session updates until the client disconnects.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		middleware.WriteError(w, http.StatusNotFound, "Event stream disabled")
		return
	}
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	h.hub.Serve(conn, s.ID, map[string]interface{}{
		"type":    "initial_session",
		"session": s.Snapshot(),
	})
}

func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	if s.UserID != middleware.GetUserID(r.Context()) {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return s, true
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// modTime parses a Unix millisecond form value, defaulting to now.
func modTime(values []string) time.Time {
	if len(values) > 0 {
		if ms, err := strconv.ParseInt(values[0], 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Now()
}
