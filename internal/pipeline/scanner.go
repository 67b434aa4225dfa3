package pipeline

import (
	"io/fs"
	"path/filepath"

	"github.com/ternarybob/imago/internal/metrics"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/registry"
)

// runScanner walks the source directory and streams candidate image paths
// onto the IO queue. The full file list is never materialized. Unreadable
// subdirectories are logged and skipped; exhausting the source is normal
// termination, after which the stage's onExit emits the sentinels.
func (m *Manager) runScanner(r *run) {
	count := 0

	err := filepath.WalkDir(r.source, func(path string, d fs.DirEntry, err error) error {
		if r.cancelled.Load() {
			return fs.SkipAll
		}

		if err != nil {
			m.registry.AppendLog(r.jobID, "warn", "Skipping unreadable path: "+models.NormalizePath(path))
			m.logger.Warn().Err(err).Str("path", path).Msg("Scanner skipping unreadable path")
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !models.IsImagePath(path) {
			return nil
		}

		item := &models.FileItem{
			Path:     path,
			NormPath: models.NormalizePath(path),
			Kind:     models.KindForPath(path),
		}
		if info, ierr := d.Info(); ierr == nil {
			item.Size = info.Size()
		}

		r.ioQ <- item
		m.registry.UpdateCounters(r.jobID, registry.CounterDelta{TotalFiles: 1})
		metrics.FilesScanned.Inc()
		count++
		return nil
	})

	if err != nil {
		// WalkDir only errors when the root itself is unreadable.
		m.registry.AppendLog(r.jobID, "error", "Failed to scan source: "+err.Error())
		m.logger.Error().Err(err).Str("source", r.source).Msg("Scanner failed")
	}

	m.registry.AppendLog(r.jobID, "info", "Scan complete")
	m.logger.Info().
		Str("job_id", r.jobID).
		Int("files", count).
		Msg("Scanner finished")
}
