package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/statement-converter/internal/api/middleware"
	"github.com/dvloznov/statement-converter/internal/usage"
	"github.com/rs/zerolog"
)

// UsageHandler reports the caller's remaining conversions.
type UsageHandler struct {
	gate *usage.Gate
	log  zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(gate *usage.Gate, log zerolog.Logger) *UsageHandler {
	return &UsageHandler{gate: gate, log: log}
}

// GetUsage handles GET /api/usage
// remaining is -1 when conversions are unlimited.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	remaining, err := h.gate.Remaining(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to read usage")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read usage")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"remaining": remaining,
	})
}

// historyEntry is the JSON shape of one conversion history row.
type historyEntry struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id,omitempty"`
	Filename         string    `json:"filename"`
	FileCount        int       `json:"file_count"`
	TransactionCount int       `json:"transaction_count"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// GetHistory handles GET /api/usage/history
// Lists the caller's past conversions, newest first.
func (h *UsageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limit := usage.DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.gate.History(ctx, userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to read conversion history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read conversion history")
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			ID:               rec.ID,
			SessionID:        rec.SessionID,
			Filename:         rec.Filename(),
			FileCount:        len(rec.Filenames),
			TransactionCount: rec.TransactionCount,
			Status:           rec.Status,
			CreatedAt:        rec.CreatedAt,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversions": entries,
		"count":       len(entries),
	})
}
