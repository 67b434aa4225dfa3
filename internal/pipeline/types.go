package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ternarybob/imago/internal/models"
)

// Structural errors reported synchronously to StartPipeline callers.
var (
	// ErrNoActiveCollection is returned when ingestion is started with
	// neither an explicit nor a selected collection.
	ErrNoActiveCollection = errors.New("no active collection selected")

	// ErrUnknownCollection is returned when the vector store does not know
	// the requested collection.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrJobNotRunning is returned when cancelling a job that is not active.
	ErrJobNotRunning = errors.New("job is not running")
)

// run holds the per-job pipeline state: the three bounded queues, sentinel
// accounting and the cooperative cancellation flags. Sentinels are nil
// items; each stage forwards the downstream stage's sentinel count when its
// last worker exits.
type run struct {
	jobID      string
	collection string
	source     string

	ctx    context.Context
	cancel context.CancelFunc

	// cancelled is the user-requested cooperative cancellation flag.
	// Workers check it before processing each dequeued item.
	cancelled atomic.Bool

	// workerFailed marks an abnormal worker exit; the job terminates as
	// failed but queues are still drained so no buffered items leak.
	workerFailed atomic.Bool

	// scanDone gates progress reporting: percentages are meaningless while
	// the total file count is still growing.
	scanDone atomic.Bool

	ioQ chan *models.FileItem
	mlQ chan *models.FileItem
	dbQ chan *models.FileItem

	cpuRemaining atomic.Int32
	gpuRemaining atomic.Int32
	dbRemaining  atomic.Int32

	// cleanup runs once after the job reaches a terminal state (used to
	// remove staged upload directories).
	cleanup func()
}

// draining reports whether workers should discard instead of process.
func (r *run) draining() bool {
	return r.cancelled.Load() || r.workerFailed.Load()
}
