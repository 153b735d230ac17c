// Package apiserver exposes the read API over reports and history plus the
// feedback write endpoint.
package apiserver

import (
	"net/http"
	"time"

	"github.com/rightsizer/rightsizer/internal/config"
	"github.com/rightsizer/rightsizer/internal/store"
)

// NewServer creates the HTTP server for the REST API.
func NewServer(cfg *config.Config, history *store.HistoryStore, archive *store.ReportArchive) *http.Server {
	router := NewRouter(history, archive)

	return &http.Server{
		Addr:         cfg.APIServer.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
