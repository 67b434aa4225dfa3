// -----------------------------------------------------------------------
// Ingestion Job - Job record, counters, logs and terminal result
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true for states that end a job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// FailReason classifies per-item ingestion failures.
type FailReason string

const (
	FailTooLarge         FailReason = "too_large"
	FailDecodeError      FailReason = "decode_error"
	FailMLRejected       FailReason = "ml_rejected"
	FailMLUnreachable    FailReason = "ml_unreachable"
	FailStoreWriteFailed FailReason = "store_write_failed"
)

// Processed file sources.
const (
	SourceBatchML = "batch_ml"
	SourceCache   = "cache"
)

// JobCounters tracks per-job file accounting.
// Invariant on completion: Processed + Failed + FromCache == TotalFiles.
type JobCounters struct {
	TotalFiles int `json:"total_files"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
	FromCache  int `json:"from_cache"`
}

// Done returns the number of files with a terminal disposition.
func (c JobCounters) Done() int {
	return c.Processed + c.Failed + c.FromCache
}

// JobLogEntry is a timestamped log line attached to a job.
type JobLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// ProcessedFile records a successfully ingested file in the job result.
type ProcessedFile struct {
	Path    string `json:"path"`
	PointID string `json:"point_id"`
	Source  string `json:"source"` // "batch_ml" or "cache"
}

// FailedFile records a per-item failure in the job result.
type FailedFile struct {
	Path   string     `json:"path"`
	Reason FailReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// JobResult is the terminal report written when a job finishes.
type JobResult struct {
	TotalProcessed int             `json:"total_processed"`
	TotalFailed    int             `json:"total_failed"`
	TotalFromCache int             `json:"total_from_cache"`
	ProcessedFiles []ProcessedFile `json:"processed_files"`
	FailedFiles    []FailedFile    `json:"failed_files"`
}

// Job is one user-initiated ingestion run against one source and one
// collection. The registry exclusively owns job records; callers only see
// snapshots.
type Job struct {
	ID         string        `json:"id"`
	Collection string        `json:"collection"`
	Source     string        `json:"source"`
	Status     JobStatus     `json:"status"`
	Progress   float64       `json:"progress"` // percent, monotone non-decreasing
	Counters   JobCounters   `json:"counters"`
	Logs       []JobLogEntry `json:"logs"`
	Result     *JobResult    `json:"result,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// NewJob creates a pending job with a fresh id.
func NewJob(collection, source string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Collection: collection,
		Source:     source,
		Status:     JobStatusPending,
		CreatedAt:  time.Now(),
	}
}
