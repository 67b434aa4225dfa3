package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Ingestion
	mux.HandleFunc("/api/ingest", s.app.IngestHandler.StartHandler) // POST - start ingestion job

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.IngestHandler.ListHandler) // GET - list jobs
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)              // Handles /api/jobs/{id} and subpaths

	// API routes - Collections
	mux.HandleFunc("/api/collections", s.app.CollectionHandler.CollectionsHandler)        // GET (list), POST (create)
	mux.HandleFunc("/api/collections/", s.app.CollectionHandler.CollectionByNameHandler)  // DELETE /{name}, POST /{name}/select, /{name}/cache/clear

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	// Catch-all for unknown API paths
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.app.APIHandler.NotFoundHandler(w, r)
	})

	return mux
}

// handleJobRoutes dispatches /api/jobs/{id} and its subpaths.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	// parts: ["api", "jobs", "{id}", ...]
	switch {
	case len(parts) == 3:
		s.app.IngestHandler.StatusHandler(w, r)
	case len(parts) == 4 && parts[3] == "cancel":
		s.app.IngestHandler.CancelHandler(w, r)
	case len(parts) == 4 && parts[3] == "logs":
		s.app.LogsHandler.TailHandler(w, r)
	case len(parts) == 5 && parts[3] == "logs" && parts[4] == "ws":
		s.app.LogsHandler.StreamHandler(w, r)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
