package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/services/collection"
)

// CollectionHandler handles collection management API requests.
type CollectionHandler struct {
	service *collection.Service
	cache   interfaces.DedupCache
	logger  arbor.ILogger
}

// NewCollectionHandler creates a collection handler.
func NewCollectionHandler(service *collection.Service, cache interfaces.DedupCache, logger arbor.ILogger) *CollectionHandler {
	return &CollectionHandler{
		service: service,
		cache:   cache,
		logger:  logger,
	}
}

type createCollectionRequest struct {
	Name       string `json:"name"`
	VectorSize int    `json:"vector_size"`
	Distance   string `json:"distance"`
}

// CollectionsHandler dispatches /api/collections by method.
// GET lists collections, POST creates one.
func (h *CollectionHandler) CollectionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCollections(w, r)
	case http.MethodPost:
		h.createCollection(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *CollectionHandler) listCollections(w http.ResponseWriter, r *http.Request) {
	infos, active, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list collections")
		WriteError(w, http.StatusBadGateway, "Failed to list collections")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"collections": infos,
		"active":      active,
	})
}

func (h *CollectionHandler) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.service.Create(r.Context(), req.Name, req.VectorSize, req.Distance); err != nil {
		h.logger.Error().Err(err).Str("collection", req.Name).Msg("Failed to create collection")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]string{
		"status": "created",
		"name":   strings.TrimSpace(req.Name),
	})
}

// CollectionByNameHandler dispatches /api/collections/{name} and its subpaths:
// DELETE /api/collections/{name}            - delete the collection
// POST   /api/collections/{name}/select     - make it the active target
// POST   /api/collections/{name}/cache/clear - drop its dedup cache entries
// GET    /api/collections/{name}/cache       - dedup cache entry count
func (h *CollectionHandler) CollectionByNameHandler(w http.ResponseWriter, r *http.Request) {
	name := PathSegment(r, 2)
	if name == "" {
		WriteError(w, http.StatusBadRequest, "Collection name is required")
		return
	}
	action := PathSegment(r, 3)

	switch {
	case action == "" && r.Method == http.MethodDelete:
		h.deleteCollection(w, r, name)
	case action == "select" && r.Method == http.MethodPost:
		h.selectCollection(w, r, name)
	case action == "cache" && PathSegment(r, 4) == "clear" && r.Method == http.MethodPost:
		h.clearCache(w, r, name)
	case action == "cache" && r.Method == http.MethodGet:
		h.cacheCount(w, r, name)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *CollectionHandler) deleteCollection(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.service.Delete(r.Context(), name); err != nil {
		h.logger.Error().Err(err).Str("collection", name).Msg("Failed to delete collection")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteSuccess(w, "Collection deleted")
}

func (h *CollectionHandler) selectCollection(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.service.Select(r.Context(), name); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "selected",
		"active": name,
	})
}

func (h *CollectionHandler) clearCache(w http.ResponseWriter, r *http.Request, name string) {
	removed, err := h.service.ClearCache(r.Context(), name)
	if err != nil {
		h.logger.Error().Err(err).Str("collection", name).Msg("Failed to clear dedup cache")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "cleared",
		"removed": removed,
	})
}

func (h *CollectionHandler) cacheCount(w http.ResponseWriter, r *http.Request, name string) {
	count, err := h.cache.Count(r.Context(), name)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"collection": name,
		"entries":    count,
	})
}
