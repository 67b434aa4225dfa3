package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// logsPollInterval is how often the stream polls the registry for new job
// log lines and progress changes.
const logsPollInterval = 250 * time.Millisecond

// LogsHandler streams job logs and progress over a websocket.
type LogsHandler struct {
	registry *registry.Registry
	logger   arbor.ILogger
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler(reg *registry.Registry, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{
		registry: reg,
		logger:   logger,
	}
}

// TailHandler returns the most recent log lines of a job.
// GET /api/jobs/{id}/logs?limit=100
func (h *LogsHandler) TailHandler(w http.ResponseWriter, r *http.Request) {
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

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	logs := job.Logs
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"status": job.Status,
		"logs":   logs,
	})
}

type logsFrame struct {
	Type     string              `json:"type"` // "log", "progress" or "done"
	JobID    string              `json:"job_id"`
	Status   models.JobStatus    `json:"status,omitempty"`
	Progress float64             `json:"progress,omitempty"`
	Counters *models.JobCounters `json:"counters,omitempty"`
	Entry    *models.JobLogEntry `json:"entry,omitempty"`
}

// StreamHandler upgrades the connection and streams one job's log lines and
// progress updates until the job reaches a terminal state or the client
// disconnects.
// GET /api/jobs/{id}/logs/ws
func (h *LogsHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	if _, err := h.registry.Get(jobID); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader pump: the stream is write-only, but reads must be drained for
	// close and ping control frames to be processed.
	go func() {
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("job_id", jobID).Msg("Log stream opened")

	sentLogs := 0
	lastProgress := -1.0
	ticker := time.NewTicker(logsPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		job, err := h.registry.Get(jobID)
		if err != nil {
			return
		}

		for _, entry := range job.Logs[sentLogs:] {
			entry := entry
			frame := logsFrame{Type: "log", JobID: jobID, Entry: &entry}
			if werr := conn.WriteJSON(frame); werr != nil {
				return
			}
		}
		sentLogs = len(job.Logs)

		if job.Progress != lastProgress {
			lastProgress = job.Progress
			counters := job.Counters
			frame := logsFrame{
				Type:     "progress",
				JobID:    jobID,
				Status:   job.Status,
				Progress: job.Progress,
				Counters: &counters,
			}
			if werr := conn.WriteJSON(frame); werr != nil {
				return
			}
		}

		if job.Status.IsTerminal() {
			counters := job.Counters
			final := logsFrame{
				Type:     "done",
				JobID:    jobID,
				Status:   job.Status,
				Progress: job.Progress,
				Counters: &counters,
			}
			conn.WriteJSON(final)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
			h.logger.Debug().Str("job_id", jobID).Msg("Log stream closed")
			return
		}
	}
}
