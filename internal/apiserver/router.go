package apiserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rightsizer/rightsizer/internal/apiserver/handler"
	"github.com/rightsizer/rightsizer/internal/store"
)

// NewRouter creates the API router with all endpoints.
func NewRouter(history *store.HistoryStore, archive *store.ReportArchive) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	reportHandler := handler.NewReportHandler(archive)
	historyHandler := handler.NewHistoryHandler(history)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Reports
		r.Get("/reports", reportHandler.List)

		// History and feedback
		r.Get("/history", historyHandler.List)
		r.Get("/history/{id}", historyHandler.Get)
		r.Post("/history/{id}/feedback", historyHandler.SetFeedback)
	})

	return r
}
