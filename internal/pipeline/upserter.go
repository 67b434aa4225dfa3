package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/imago/internal/metrics"
	"github.com/ternarybob/imago/internal/models"
)

const maxUpsertAttempts = 3

// runDBWorker batches points and performs bulk upserts into the vector
// store. The dedup cache entry for a point is written only after its upsert
// succeeded, so cache hits always correspond to durable store state.
func (m *Manager) runDBWorker(r *run, workerID int) {
	batch := make([]*models.FileItem, 0, m.cfg.UpsertBatchSize)

	flush := func() {
		if len(batch) > 0 {
			m.flushUpserts(r, batch)
			batch = batch[:0]
		}
	}

	for {
		if len(batch) == 0 {
			item := <-r.dbQ
			if item == nil {
				return
			}
			if r.draining() {
				continue
			}
			batch = append(batch, item)
		} else {
			select {
			case item := <-r.dbQ:
				if item == nil {
					flush()
					return
				}
				if r.draining() {
					batch = batch[:0]
					continue
				}
				batch = append(batch, item)
			case <-time.After(m.cfg.DBIdleFlush):
				flush()
				continue
			}
		}

		if len(batch) >= m.cfg.UpsertBatchSize {
			flush()
		}
	}
}

// flushUpserts performs one bulk upsert for the buffered items. On success
// every ML-produced item is written to the dedup cache; on permanent
// failure every item is recorded as store_write_failed and the cache is
// left untouched.
func (m *Manager) flushUpserts(r *run, items []*models.FileItem) {
	if len(items) == 0 || r.draining() {
		return
	}

	points := make([]models.Point, len(items))
	for i, item := range items {
		points[i] = models.Point{
			ID:      item.PointID,
			Vector:  item.Vector,
			Payload: item.Metadata,
		}
	}

	if err := m.upsertWithRetry(r, points); err != nil {
		if errors.Is(err, context.Canceled) {
			// In-flight at cancellation: counted nowhere.
			return
		}
		for _, item := range items {
			m.failItem(r, item.Path, models.FailStoreWriteFailed, err.Error())
		}
		return
	}

	metrics.PointsUpserted.Add(float64(len(points)))

	for _, item := range items {
		if !item.FromCache {
			entry := &models.CacheEntry{
				Key:        models.CacheKey(r.collection, item.Hash),
				Collection: r.collection,
				Hash:       item.Hash,
				PointID:    item.PointID,
				Vector:     item.Vector,
				Payload:    item.Metadata,
			}
			if err := m.cache.Put(r.ctx, entry); err != nil {
				// The point is durable; a failed cache write only costs a
				// future re-embed.
				m.logger.Warn().Err(err).Str("hash", item.Hash).Msg("Failed to write dedup cache entry")
			}
		}
		m.completeItem(r, item)
	}
}

// upsertWithRetry retries transient store failures with the same backoff
// policy as the ML stage.
func (m *Manager) upsertWithRetry(r *run, points []models.Point) error {
	var lastErr error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		if attempt > 0 {
			backoff := m.cfg.RetryBaseDelay * (1 << (attempt - 1))
			backoff += time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-r.ctx.Done():
				return r.ctx.Err()
			case <-time.After(backoff):
			}
		}
		if r.cancelled.Load() {
			return context.Canceled
		}

		err := m.store.UpsertPoints(r.ctx, r.collection, points)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return err
		}

		m.logger.Warn().
			Err(err).
			Str("job_id", r.jobID).
			Int("points", len(points)).
			Msg(fmt.Sprintf("Bulk upsert attempt %d failed", attempt+1))
	}
	return lastErr
}
