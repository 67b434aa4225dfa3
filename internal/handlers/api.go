package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
)

type APIHandler struct {
	caps   interfaces.CapabilitySource
	store  interfaces.VectorStore
	logger arbor.ILogger
}

func NewAPIHandler(caps interfaces.CapabilitySource, store interfaces.VectorStore) *APIHandler {
	return &APIHandler{
		caps:   caps,
		store:  store,
		logger: common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.Version,
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler reports service health plus the state of both upstream
// dependencies: the ML service (from the capability probe, no extra call)
// and the vector store (one cheap list call).
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snap := h.caps.Snapshot()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	storeStatus := "ok"
	if _, err := h.store.ListCollections(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Vector store health check failed")
		storeStatus = "unreachable"
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ml_service": map[string]interface{}{
			"ready":      snap.Ready,
			"safe_batch": snap.SafeBatch,
		},
		"vector_store": map[string]string{
			"status": storeStatus,
		},
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
