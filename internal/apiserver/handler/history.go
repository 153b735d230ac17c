package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rightsizer/rightsizer/internal/metrics"
	"github.com/rightsizer/rightsizer/internal/store"
	"github.com/rightsizer/rightsizer/pkg/recommend"
)

// HistoryHandler serves recommendation history and accepts operator feedback.
type HistoryHandler struct {
	history *store.HistoryStore
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(history *store.HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns recent history rows, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	rows, err := h.history.List(limit)
	if err != nil {
		slog.Error("api: listing history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": rows,
		"count":   len(rows),
	})
}

// Get returns one history row by id.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid history id")
		return
	}
	row, err := h.history.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type feedbackRequest struct {
	Status recommend.FeedbackStatus `json:"status"`
}

// SetFeedback attaches operator feedback to a history row. The status drives
// future scans: DONT_RECOMMEND suppresses the recommendation type, TOO_SMALL
// and TOO_LARGE bound the next candidate search.
func (h *HistoryHandler) SetFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid history id")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !recommend.ValidFeedback(req.Status) {
		writeError(w, http.StatusBadRequest, "unknown feedback status")
		return
	}

	if err := h.history.SetFeedback(id, req.Status); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	metrics.FeedbackReceived.WithLabelValues(string(req.Status)).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
