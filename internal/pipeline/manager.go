// Package pipeline implements the staged ingestion engine: an IO scanner, a
// pool of CPU processors, GPU delegation workers and a DB upserter connected
// by bounded queues with sentinel-based shutdown.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/metrics"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/registry"
)

// Config tunes the pipeline stages. Zero values select the defaults.
type Config struct {
	CPUWorkers      int
	GPUWorkers      int
	DBWorkers       int
	IOQueueSize     int
	MLBatchSize     int
	UpsertBatchSize int
	MaxFileSize     int64
	GPUIdleFlush    time.Duration
	DBIdleFlush     time.Duration
	RetryBaseDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.CPUWorkers <= 0 {
		c.CPUWorkers = 4
	}
	if c.GPUWorkers <= 0 {
		c.GPUWorkers = 1
	}
	if c.DBWorkers <= 0 {
		c.DBWorkers = 1
	}
	if c.IOQueueSize <= 0 {
		c.IOQueueSize = 1000
	}
	if c.MLBatchSize <= 0 {
		c.MLBatchSize = 128
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = 64
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.GPUIdleFlush <= 0 {
		c.GPUIdleFlush = 500 * time.Millisecond
	}
	if c.DBIdleFlush <= 0 {
		c.DBIdleFlush = 1 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// Manager allocates queues and workers per job, supervises their lifecycle
// and guarantees resource release.
type Manager struct {
	cfg      Config
	registry *registry.Registry
	cache    interfaces.DedupCache
	ml       interfaces.MLClient
	store    interfaces.VectorStore
	caps     interfaces.CapabilitySource
	logger   arbor.ILogger

	mu     sync.Mutex
	active map[string]*run
}

// NewManager creates a pipeline manager.
func NewManager(cfg Config, reg *registry.Registry, cache interfaces.DedupCache,
	mlClient interfaces.MLClient, store interfaces.VectorStore,
	caps interfaces.CapabilitySource, logger arbor.ILogger) *Manager {

	return &Manager{
		cfg:      cfg.withDefaults(),
		registry: reg,
		cache:    cache,
		ml:       mlClient,
		store:    store,
		caps:     caps,
		logger:   logger,
	}
}

// StartPipeline validates the target collection, registers a job and starts
// the four stages. It returns as soon as the workers are scheduled; progress
// is observed through the registry. cleanup, if non-nil, runs once after the
// job reaches a terminal state.
func (m *Manager) StartPipeline(ctx context.Context, collection, source string, cleanup func()) (string, error) {
	if collection == "" {
		return "", ErrNoActiveCollection
	}

	exists, err := m.store.CollectionExists(ctx, collection)
	if err != nil {
		return "", fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	job := m.registry.Create(collection, source)

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		jobID:      job.ID,
		collection: collection,
		source:     source,
		ctx:        runCtx,
		cancel:     cancel,
		ioQ:        make(chan *models.FileItem, m.cfg.IOQueueSize),
		mlQ:        make(chan *models.FileItem, 4*m.cfg.MLBatchSize),
		dbQ:        make(chan *models.FileItem, 4*m.cfg.UpsertBatchSize),
		cleanup:    cleanup,
	}
	r.cpuRemaining.Store(int32(m.cfg.CPUWorkers))
	r.gpuRemaining.Store(int32(m.cfg.GPUWorkers))
	r.dbRemaining.Store(int32(m.cfg.DBWorkers))

	m.mu.Lock()
	if m.active == nil {
		m.active = make(map[string]*run)
	}
	m.active[job.ID] = r
	m.mu.Unlock()

	if err := m.registry.MarkRunning(job.ID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job running")
	}
	m.registry.AppendLog(job.ID, "info", fmt.Sprintf("Ingestion started for %s into collection %s", source, collection))
	metrics.JobsActive.Inc()

	// IO scanner: emits W sentinels when the walk finishes.
	m.spawnStage(r, "io-scanner", nil, func() {
		if r.scanDone.CompareAndSwap(false, true) {
			for i := 0; i < m.cfg.CPUWorkers; i++ {
				r.ioQ <- nil
			}
		}
	}, func() {
		m.runScanner(r)
	})

	// CPU processors: the last exiting worker forwards G sentinels.
	for i := 0; i < m.cfg.CPUWorkers; i++ {
		workerID := i
		m.spawnStage(r, fmt.Sprintf("cpu-worker-%d", workerID), r.ioQ, func() {
			if r.cpuRemaining.Add(-1) == 0 {
				for j := 0; j < m.cfg.GPUWorkers; j++ {
					r.mlQ <- nil
				}
			}
		}, func() {
			m.runCPUWorker(r, workerID)
		})
	}

	// GPU workers: the last exiting worker forwards D sentinels.
	for i := 0; i < m.cfg.GPUWorkers; i++ {
		workerID := i
		m.spawnStage(r, fmt.Sprintf("gpu-worker-%d", workerID), r.mlQ, func() {
			if r.gpuRemaining.Add(-1) == 0 {
				for j := 0; j < m.cfg.DBWorkers; j++ {
					r.dbQ <- nil
				}
			}
		}, func() {
			m.runGPUWorker(r, workerID)
		})
	}

	// DB upserters: the last exiting worker finalizes the job.
	for i := 0; i < m.cfg.DBWorkers; i++ {
		workerID := i
		m.spawnStage(r, fmt.Sprintf("db-worker-%d", workerID), r.dbQ, func() {
			if r.dbRemaining.Add(-1) == 0 {
				m.finalize(r)
			}
		}, func() {
			m.runDBWorker(r, workerID)
		})
	}

	return job.ID, nil
}

// Cancel requests cooperative cancellation of a running job. Workers drain
// their in-flight item, then exit without pulling new work; in-flight HTTP
// calls are aborted through the run context.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	r, ok := m.active[jobID]
	m.mu.Unlock()

	if !ok {
		if _, err := m.registry.Get(jobID); err != nil {
			return registry.ErrJobNotFound
		}
		return ErrJobNotRunning
	}

	if r.cancelled.CompareAndSwap(false, true) {
		m.registry.AppendLog(jobID, "warn", "Cancellation requested")
		m.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
		r.cancel()
	}
	return nil
}

// spawnStage runs one stage worker with panic isolation. A panicking worker
// is logged to the job and replaced by a drain loop so buffered items never
// leak; sentinel accounting in onExit runs on every exit path.
func (m *Manager) spawnStage(r *run, name string, in chan *models.FileItem, onExit, body func()) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.workerFailed.Store(true)
				m.logger.Error().
					Str("job_id", r.jobID).
					Str("worker", name).
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("stack", common.GetStackTrace()).
					Msg("Pipeline worker panicked")
				m.registry.AppendLog(r.jobID, "error", fmt.Sprintf("Worker %s crashed: %v", name, rec))

				// Keep draining this worker's queue until its sentinel so
				// upstream producers are released.
				if in != nil {
					for item := <-in; item != nil; item = <-in {
					}
				}
			}
			onExit()
		}()

		body()
	}()
}

// finalize flushes terminal job state after the last DB worker has drained
// its final sentinel.
func (m *Manager) finalize(r *run) {
	status := models.JobStatusCompleted
	switch {
	case r.cancelled.Load():
		status = models.JobStatusCancelled
	case r.workerFailed.Load():
		status = models.JobStatusFailed
	}

	if status == models.JobStatusCompleted {
		m.registry.SetProgress(r.jobID, 100)
	}

	if err := m.registry.Transition(r.jobID, status); err != nil {
		m.logger.Warn().Err(err).Str("job_id", r.jobID).Msg("Failed to transition job")
	}
	m.registry.AppendLog(r.jobID, "info", fmt.Sprintf("Job finished with status %s", status))

	metrics.JobsActive.Dec()
	r.cancel()

	m.mu.Lock()
	delete(m.active, r.jobID)
	m.mu.Unlock()

	if r.cleanup != nil {
		r.cleanup()
	}
}

// updateProgress recomputes the job percentage once scanning has fixed the
// total. The registry keeps progress monotone.
func (m *Manager) updateProgress(r *run) {
	if !r.scanDone.Load() {
		return
	}
	counters, err := m.registry.Counters(r.jobID)
	if err != nil || counters.TotalFiles == 0 {
		return
	}
	m.registry.SetProgress(r.jobID, float64(counters.Done())*100/float64(counters.TotalFiles))
}

// failItem records a per-item failure. Per-item failures accumulate and
// never abort the pipeline.
func (m *Manager) failItem(r *run, path string, reason models.FailReason, detail string) {
	m.registry.AddFailed(r.jobID, models.FailedFile{Path: models.NormalizePath(path), Reason: reason, Detail: detail})
	m.registry.UpdateCounters(r.jobID, registry.CounterDelta{Failed: 1})
	m.registry.AppendLog(r.jobID, "warn", fmt.Sprintf("%s: %s (%s)", reason, models.NormalizePath(path), detail))
	metrics.FilesProcessed.WithLabelValues("failed").Inc()
	m.updateProgress(r)
}

// completeItem records a successfully upserted file.
func (m *Manager) completeItem(r *run, item *models.FileItem) {
	source := models.SourceBatchML
	delta := registry.CounterDelta{Processed: 1}
	outcome := "processed"
	if item.FromCache {
		source = models.SourceCache
		delta = registry.CounterDelta{FromCache: 1}
		outcome = "from_cache"
	}

	m.registry.AddProcessed(r.jobID, models.ProcessedFile{
		Path:    item.NormPath,
		PointID: item.PointID,
		Source:  source,
	})
	m.registry.UpdateCounters(r.jobID, delta)
	metrics.FilesProcessed.WithLabelValues(outcome).Inc()
	m.updateProgress(r)
}
