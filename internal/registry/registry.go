// Package registry is the exclusive owner of ingestion job records. All
// mutations are serialized per job; reads return point-in-time snapshots.
// Job state is in-memory only and lives for the process lifetime.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrTerminalState is returned when a transition targets a job that already
// reached a terminal state.
var ErrTerminalState = errors.New("job is already in a terminal state")

// CounterDelta adjusts job counters atomically.
type CounterDelta struct {
	TotalFiles int
	Processed  int
	Failed     int
	FromCache  int
}

// jobState pairs a job record with its mutex. The registry map itself is
// guarded separately so per-job mutations never contend across jobs.
type jobState struct {
	mu  sync.Mutex
	job models.Job

	processed []models.ProcessedFile
	failed    []models.FailedFile
}

// Registry is the synchronized in-memory job map.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*jobState
	logger arbor.ILogger
}

// New creates an empty registry.
func New(logger arbor.ILogger) *Registry {
	return &Registry{
		jobs:   make(map[string]*jobState),
		logger: logger,
	}
}

// Create registers a new pending job and returns its snapshot.
func (r *Registry) Create(collection, source string) models.Job {
	job := models.NewJob(collection, source)

	r.mu.Lock()
	r.jobs[job.ID] = &jobState{job: *job}
	r.mu.Unlock()

	r.logger.Info().
		Str("job_id", job.ID).
		Str("collection", collection).
		Str("source", source).
		Msg("Ingestion job created")

	return *job
}

func (r *Registry) state(jobID string) (*jobState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return st, nil
}

// MarkRunning moves a pending job to running.
func (r *Registry) MarkRunning(jobID string) error {
	st, err := r.state(jobID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.job.Status.IsTerminal() {
		return ErrTerminalState
	}
	now := time.Now()
	st.job.Status = models.JobStatusRunning
	st.job.StartedAt = &now
	return nil
}

// AppendLog attaches a timestamped log line to a job. Timestamps are
// assigned here, under the job lock, so log order matches timestamp order.
func (r *Registry) AppendLog(jobID, level, message string) {
	st, err := r.state(jobID)
	if err != nil {
		return
	}

	st.mu.Lock()
	st.job.Logs = append(st.job.Logs, models.JobLogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
	st.mu.Unlock()
}

// UpdateCounters applies a counter delta.
func (r *Registry) UpdateCounters(jobID string, delta CounterDelta) {
	st, err := r.state(jobID)
	if err != nil {
		return
	}

	st.mu.Lock()
	st.job.Counters.TotalFiles += delta.TotalFiles
	st.job.Counters.Processed += delta.Processed
	st.job.Counters.Failed += delta.Failed
	st.job.Counters.FromCache += delta.FromCache
	st.mu.Unlock()
}

// SetProgress sets the job progress percent. Writes with a lower percent
// than the current value are ignored, keeping progress monotone.
func (r *Registry) SetProgress(jobID string, percent float64) {
	st, err := r.state(jobID)
	if err != nil {
		return
	}

	if percent > 100 {
		percent = 100
	}

	st.mu.Lock()
	if percent > st.job.Progress {
		st.job.Progress = percent
	}
	st.mu.Unlock()
}

// AddProcessed records a successfully ingested file.
func (r *Registry) AddProcessed(jobID string, file models.ProcessedFile) {
	st, err := r.state(jobID)
	if err != nil {
		return
	}

	st.mu.Lock()
	st.processed = append(st.processed, file)
	st.mu.Unlock()
}

// AddFailed records a per-item failure.
func (r *Registry) AddFailed(jobID string, file models.FailedFile) {
	st, err := r.state(jobID)
	if err != nil {
		return
	}

	st.mu.Lock()
	st.failed = append(st.failed, file)
	st.mu.Unlock()
}

// Transition moves a job into a terminal state and writes the result
// report. A second transition attempt is rejected with ErrTerminalState.
func (r *Registry) Transition(jobID string, status models.JobStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("transition target %s is not terminal", status)
	}

	st, err := r.state(jobID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.job.Status.IsTerminal() {
		return ErrTerminalState
	}

	now := time.Now()
	st.job.Status = status
	st.job.FinishedAt = &now
	st.job.Result = &models.JobResult{
		TotalProcessed: st.job.Counters.Processed,
		TotalFailed:    st.job.Counters.Failed,
		TotalFromCache: st.job.Counters.FromCache,
		ProcessedFiles: append([]models.ProcessedFile(nil), st.processed...),
		FailedFiles:    append([]models.FailedFile(nil), st.failed...),
	}

	r.logger.Info().
		Str("job_id", jobID).
		Str("status", string(status)).
		Int("processed", st.job.Counters.Processed).
		Int("failed", st.job.Counters.Failed).
		Int("from_cache", st.job.Counters.FromCache).
		Msg("Job finished")
	return nil
}

// Counters returns the current counter values without copying logs.
func (r *Registry) Counters(jobID string) (models.JobCounters, error) {
	st, err := r.state(jobID)
	if err != nil {
		return models.JobCounters{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.job.Counters, nil
}

// Get returns a consistent snapshot of a job.
func (r *Registry) Get(jobID string) (models.Job, error) {
	st, err := r.state(jobID)
	if err != nil {
		return models.Job{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return copyJob(&st.job), nil
}

// List returns snapshots of all jobs, most recent first.
func (r *Registry) List() []models.Job {
	r.mu.RLock()
	states := make([]*jobState, 0, len(r.jobs))
	for _, st := range r.jobs {
		states = append(states, st)
	}
	r.mu.RUnlock()

	jobs := make([]models.Job, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		jobs = append(jobs, copyJob(&st.job))
		st.mu.Unlock()
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// copyJob deep-copies the mutable slices so snapshots never alias registry
// state.
func copyJob(job *models.Job) models.Job {
	snapshot := *job
	snapshot.Logs = append([]models.JobLogEntry(nil), job.Logs...)
	if job.Result != nil {
		result := *job.Result
		result.ProcessedFiles = append([]models.ProcessedFile(nil), job.Result.ProcessedFiles...)
		result.FailedFiles = append([]models.FailedFile(nil), job.Result.FailedFiles...)
		snapshot.Result = &result
	}
	return snapshot
}
