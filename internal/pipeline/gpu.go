package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/imago/internal/metrics"
	"github.com/ternarybob/imago/internal/ml"
	"github.com/ternarybob/imago/internal/models"
)

const maxMLAttempts = 3

// gpuWorker holds per-worker batch limit state. An OOM response halves the
// local limit; the reduction persists until a capability snapshot raises the
// safe batch again.
type gpuWorker struct {
	localLimit int
	lastGen    uint64
	lastBase   int
}

// activeLimit computes min(configured max, probe safe batch), then applies
// the worker's OOM reduction. Before the probe produces a snapshot the
// configured default is used. A new snapshot clears the reduction only when
// it actually raises the limit; refreshes at the same value keep it.
func (w *gpuWorker) activeLimit(snap models.CapabilitySnapshot, configuredMax int) int {
	base := configuredMax
	if snap.Generation > 0 && snap.SafeBatch > 0 && snap.SafeBatch < base {
		base = snap.SafeBatch
	}

	if w.localLimit == 0 {
		w.localLimit = base
	}
	if snap.Generation != w.lastGen {
		if base > w.lastBase {
			w.localLimit = base
		}
		w.lastGen = snap.Generation
		w.lastBase = base
	}

	if w.localLimit > base {
		w.localLimit = base
	}
	if w.localLimit < 1 {
		w.localLimit = 1
	}
	return w.localLimit
}

// halve applies the OOM reduction, never below one.
func (w *gpuWorker) halve() {
	w.localLimit /= 2
	if w.localLimit < 1 {
		w.localLimit = 1
	}
}

// runGPUWorker groups ML-queue items into batches and delegates them to the
// ML service. A batch is flushed when it reaches the active limit, when the
// idle timeout elapses, or on sentinel receipt.
func (m *Manager) runGPUWorker(r *run, workerID int) {
	w := &gpuWorker{}
	batch := make([]*models.FileItem, 0, m.cfg.MLBatchSize)

	flush := func() {
		if len(batch) > 0 {
			m.sendBatch(r, w, batch)
			batch = batch[:0]
		}
	}

	for {
		if len(batch) == 0 {
			// Nothing pending: block until work or sentinel arrives.
			item := <-r.mlQ
			if item == nil {
				return
			}
			if r.draining() {
				continue
			}
			batch = append(batch, item)
		} else {
			// The idle timeout keeps small trailing batches from stalling
			// indefinitely on sparse input.
			select {
			case item := <-r.mlQ:
				if item == nil {
					flush()
					return
				}
				if r.draining() {
					batch = batch[:0]
					continue
				}
				batch = append(batch, item)
			case <-time.After(m.cfg.GPUIdleFlush):
				flush()
				continue
			}
		}

		if len(batch) >= w.activeLimit(m.caps.Snapshot(), m.cfg.MLBatchSize) {
			flush()
		}
	}
}

// sendBatch submits a batch to the ML service, splitting on OOM responses.
// The worklist is processed iteratively: each OOM either halves the worker's
// limit and requeues the chunk in smaller pieces, or, for a chunk that is
// already a single item, marks it failed. The limit only shrinks while it is
// above one, so the loop always terminates. A chunk that exhausts retries
// marks its items failed and the pipeline continues.
func (m *Manager) sendBatch(r *run, w *gpuWorker, items []*models.FileItem) {
	pending := [][]*models.FileItem{items}

	for len(pending) > 0 {
		chunk := pending[0]
		pending = pending[1:]
		if len(chunk) == 0 || r.draining() {
			continue
		}

		results, err := m.embedChunk(r, chunk)
		if err == nil {
			metrics.MLBatches.WithLabelValues("ok").Inc()
			m.forwardResults(r, chunk, results)
			continue
		}
		if errors.Is(err, context.Canceled) {
			// In-flight at cancellation: counted nowhere.
			return
		}

		if ml.IsOOM(err) {
			metrics.MLBatches.WithLabelValues("oom").Inc()
			if len(chunk) == 1 {
				// Even a single item does not fit; splitting further cannot
				// help.
				m.failItem(r, chunk[0].Path, models.FailMLUnreachable,
					"ml service out of memory at batch size 1")
				continue
			}

			w.halve()
			m.registry.AppendLog(r.jobID, "warn",
				fmt.Sprintf("ML service out of memory on batch of %d, reducing batch size to %d", len(chunk), w.localLimit))

			// Requeue the chunk in pieces of the reduced limit, ahead of any
			// remaining work.
			var split [][]*models.FileItem
			for start := 0; start < len(chunk); start += w.localLimit {
				end := start + w.localLimit
				if end > len(chunk) {
					end = len(chunk)
				}
				split = append(split, chunk[start:end])
			}
			pending = append(split, pending...)
			continue
		}

		metrics.MLBatches.WithLabelValues("error").Inc()
		reason := models.FailMLUnreachable
		if ml.IsRejection(err) {
			reason = models.FailMLRejected
		}
		for _, item := range chunk {
			m.failItem(r, item.Path, reason, err.Error())
		}
	}
}

// embedChunk encodes one chunk and submits it with retries.
func (m *Manager) embedChunk(r *run, items []*models.FileItem) ([]models.MLResult, error) {
	images := make([]models.MLImage, len(items))
	for i, item := range items {
		images[i] = models.MLImage{
			ImageBase64: base64.StdEncoding.EncodeToString(item.Data),
			Filename:    filepath.Base(item.Path),
			UniqueID:    strconv.Itoa(i),
		}
	}

	metrics.MLBatchSize.Observe(float64(len(items)))
	return m.embedWithRetry(r, images)
}

// forwardResults pairs results with their items by unique id and enqueues
// the produced points on the DB queue.
func (m *Manager) forwardResults(r *run, items []*models.FileItem, results []models.MLResult) {
	resultByID := make(map[string]models.MLResult, len(results))
	for _, res := range results {
		resultByID[res.UniqueID] = res
	}

	for i, item := range items {
		res, ok := resultByID[strconv.Itoa(i)]
		if !ok {
			m.failItem(r, item.Path, models.FailMLRejected, "ml service returned no result for item")
			continue
		}
		if res.Error != "" {
			m.failItem(r, item.Path, models.FailMLRejected, res.Error)
			continue
		}

		item.Vector = res.Embedding
		item.Caption = res.Caption
		item.Metadata["caption"] = res.Caption
		item.Data = nil
		r.dbQ <- item
	}
}

// embedWithRetry retries transient failures with exponential backoff and
// jitter. 4xx rejections and OOM signals are returned immediately; retries
// stop at the cancellation boundary.
func (m *Manager) embedWithRetry(r *run, images []models.MLImage) ([]models.MLResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxMLAttempts; attempt++ {
		if attempt > 0 {
			backoff := m.cfg.RetryBaseDelay * (1 << (attempt - 1))
			backoff += time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-r.ctx.Done():
				return nil, r.ctx.Err()
			case <-time.After(backoff):
			}
		}
		if r.cancelled.Load() {
			return nil, context.Canceled
		}

		results, err := m.ml.EmbedBatch(r.ctx, images)
		if err == nil {
			return results, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || ml.IsOOM(err) || ml.IsRejection(err) {
			return nil, err
		}

		m.logger.Warn().
			Err(err).
			Str("job_id", r.jobID).
			Int("attempt", attempt+1).
			Int("batch_size", len(images)).
			Msg("ML embed attempt failed")
	}
	return nil, lastErr
}
