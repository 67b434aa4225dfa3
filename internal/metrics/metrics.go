// Package metrics exposes Prometheus counters for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesScanned counts candidate files emitted by the IO scanner.
	FilesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imago_files_scanned_total",
		Help: "Candidate image files discovered by the IO scanner.",
	})

	// FilesProcessed counts files with a terminal disposition, by outcome.
	FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imago_files_processed_total",
		Help: "Files that reached a terminal disposition, labelled by outcome.",
	}, []string{"outcome"}) // processed, failed, from_cache

	// MLBatches counts batch embed calls by result.
	MLBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imago_ml_batches_total",
		Help: "Batch embed requests issued to the ML service, labelled by result.",
	}, []string{"result"}) // ok, error, oom

	// MLBatchSize observes submitted batch sizes.
	MLBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imago_ml_batch_size",
		Help:    "Size of batches submitted to the ML service.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1..256
	})

	// PointsUpserted counts points written to the vector store.
	PointsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imago_points_upserted_total",
		Help: "Points durably upserted into the vector store.",
	})

	// CacheHits counts dedup cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imago_dedup_cache_hits_total",
		Help: "Dedup cache hits that skipped the ML service.",
	})

	// JobsActive tracks currently running ingestion jobs.
	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imago_jobs_active",
		Help: "Ingestion jobs currently running.",
	})
)
