package handler

import (
	"log/slog"
	"net/http"

	"github.com/rightsizer/rightsizer/internal/store"
)

// ReportHandler serves archived recommendation reports.
type ReportHandler struct {
	archive *store.ReportArchive
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(archive *store.ReportArchive) *ReportHandler {
	return &ReportHandler{archive: archive}
}

// List returns recent reports, newest first. Query parameters: resource_id
// (optional filter), limit.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	resourceID := r.URL.Query().Get("resource_id")
	limit := queryInt(r, "limit", 100)

	reports, err := h.archive.List(resourceID, limit)
	if err != nil {
		slog.Error("api: listing reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}
