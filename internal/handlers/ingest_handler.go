package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/pipeline"
	"github.com/ternarybob/imago/internal/registry"
	"github.com/ternarybob/imago/internal/services/collection"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// parts spill to disk.
const maxUploadMemory = 32 << 20

// IngestHandler handles ingestion job API requests.
type IngestHandler struct {
	manager     *pipeline.Manager
	registry    *registry.Registry
	collections *collection.Service
	uploadDir   string
	logger      arbor.ILogger
}

// NewIngestHandler creates an ingest handler. uploadDir is the staging root
// for multipart uploads; "" uses the OS temp directory.
func NewIngestHandler(manager *pipeline.Manager, reg *registry.Registry, collections *collection.Service, uploadDir string, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		manager:     manager,
		registry:    reg,
		collections: collections,
		uploadDir:   uploadDir,
		logger:      logger,
	}
}

type ingestRequest struct {
	DirectoryPath string `json:"directory_path"`
	Collection    string `json:"collection"`
}

// StartHandler starts an ingestion job.
// POST /api/ingest with JSON {"directory_path": "...", "collection": "..."}
// or multipart form data with "files" parts. The collection falls back to
// the active selection when omitted.
func (h *IngestHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var (
		source     string
		col        string
		cleanup    func()
		fromUpload bool
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		dir, count, err := h.stageUpload(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		source = dir
		col = r.FormValue("collection")
		fromUpload = true
		cleanup = func() {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				h.logger.Warn().Err(rmErr).Str("dir", dir).Msg("Failed to remove upload staging directory")
			}
		}
		h.logger.Info().Str("dir", dir).Int("files", count).Msg("Upload staged")
	} else {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		if req.DirectoryPath == "" {
			WriteError(w, http.StatusBadRequest, "directory_path is required")
			return
		}
		info, err := os.Stat(req.DirectoryPath)
		if err != nil || !info.IsDir() {
			WriteError(w, http.StatusBadRequest, "directory_path is not a readable directory")
			return
		}
		source = req.DirectoryPath
		col = req.Collection
	}

	if col == "" {
		col = h.collections.Active()
	}

	jobID, err := h.manager.StartPipeline(r.Context(), col, source, cleanup)
	if err != nil {
		if fromUpload && cleanup != nil {
			cleanup()
		}
		switch {
		case errors.Is(err, pipeline.ErrNoActiveCollection):
			WriteError(w, http.StatusBadRequest, "No collection selected; create and select a collection first")
		case errors.Is(err, pipeline.ErrUnknownCollection):
			WriteError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error().Err(err).Msg("Failed to start ingestion")
			WriteError(w, http.StatusInternalServerError, "Failed to start ingestion")
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "started",
	})
}

// stageUpload writes the multipart files into a fresh staging directory and
// returns its path. Nested relative filenames are flattened to their base
// name.
func (h *IngestHandler) stageUpload(r *http.Request) (string, int, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return "", 0, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return "", 0, fmt.Errorf("no files in upload")
	}

	root := h.uploadDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, common.NewUploadID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	count := 0
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			os.RemoveAll(dir)
			return "", 0, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err)
		}

		dstPath := filepath.Join(dir, filepath.Base(fh.Filename))
		dst, err := os.Create(dstPath)
		if err != nil {
			src.Close()
			os.RemoveAll(dir)
			return "", 0, fmt.Errorf("failed to stage uploaded file %s: %w", fh.Filename, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			os.RemoveAll(dir)
			return "", 0, fmt.Errorf("failed to write uploaded file %s: %w", fh.Filename, err)
		}
		count++
	}
	return dir, count, nil
}

// ListHandler returns all known jobs, most recent first.
// GET /api/jobs
func (h *IngestHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs := h.registry.List()

	// Job logs can be large; the list view carries summaries only.
	summaries := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummary(job))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  summaries,
		"count": len(summaries),
	})
}

// StatusHandler returns a full job snapshot.
// GET /api/jobs/{id}
func (h *IngestHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.registry.Get(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelHandler requests cooperative cancellation of a running job.
// POST /api/jobs/{id}/cancel
func (h *IngestHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.manager.Cancel(jobID); err != nil {
		switch {
		case errors.Is(err, registry.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, pipeline.ErrJobNotRunning):
			WriteError(w, http.StatusConflict, "Job is not running")
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
			WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": "cancelling",
	})
}

func jobSummary(job models.Job) map[string]interface{} {
	return map[string]interface{}{
		"id":          job.ID,
		"collection":  job.Collection,
		"source":      job.Source,
		"status":      job.Status,
		"progress":    job.Progress,
		"counters":    job.Counters,
		"created_at":  job.CreatedAt,
		"started_at":  job.StartedAt,
		"finished_at": job.FinishedAt,
	}
}
