package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/metrics"
	"github.com/ternarybob/imago/internal/models"
)

// runCPUWorker consumes paths from the IO queue, reads and hashes the bytes,
// extracts metadata and consults the dedup cache. Cache hits skip straight
// to the DB queue; misses carry their bytes to the ML queue. Per-item
// failures are recorded and never stop the worker.
func (m *Manager) runCPUWorker(r *run, workerID int) {
	for {
		item := <-r.ioQ
		if item == nil {
			return
		}
		if r.draining() {
			continue
		}
		m.processFile(r, item)
	}
}

func (m *Manager) processFile(r *run, item *models.FileItem) {
	info, err := os.Stat(item.Path)
	if err != nil {
		m.failItem(r, item.Path, models.FailDecodeError, "failed to stat file: "+err.Error())
		return
	}

	// Exactly at the cap is accepted; one byte over is rejected before the
	// bytes are read.
	if info.Size() > m.cfg.MaxFileSize {
		m.failItem(r, item.Path, models.FailTooLarge,
			fmt.Sprintf("file is %s, cap is %s", humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(m.cfg.MaxFileSize))))
		return
	}

	data, err := os.ReadFile(item.Path)
	if err != nil {
		m.failItem(r, item.Path, models.FailDecodeError, "failed to read file: "+err.Error())
		return
	}

	item.Size = int64(len(data))
	item.Hash = models.HashBytes(data)
	item.PointID = models.PointIDFromHash(item.Hash)

	meta, err := extractMetadata(item, data)
	if err != nil {
		m.failItem(r, item.Path, models.FailDecodeError, err.Error())
		return
	}
	item.Metadata = meta

	entry, err := m.cache.Get(r.ctx, r.collection, item.Hash)
	if err == nil {
		// Dedup hit: rebuild the point from the cached tuple, attach the
		// live filename and path (which may differ from the cached ones)
		// and bypass the ML stage entirely.
		item.FromCache = true
		item.PointID = entry.PointID
		item.Vector = entry.Vector

		payload := make(map[string]interface{}, len(entry.Payload))
		for k, v := range entry.Payload {
			payload[k] = v
		}
		payload["filename"] = meta["filename"]
		payload["file_path"] = meta["file_path"]
		item.Metadata = payload
		item.Data = nil

		metrics.CacheHits.Inc()
		r.dbQ <- item
		return
	}
	if !errors.Is(err, interfaces.ErrCacheMiss) {
		// A broken cache read is not fatal; treat it as a miss.
		m.logger.Warn().Err(err).Str("hash", item.Hash).Msg("Dedup cache read failed, treating as miss")
	}

	item.Data = data
	r.mlQ <- item
}
