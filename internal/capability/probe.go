// Package capability runs the recurring probe that refreshes the ML
// service's declared safe batch size and readiness. The probe is the single
// writer of a process-wide atomic snapshot; GPU workers and the health
// endpoint are its readers.
package capability

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// DefaultInterval is how often the probe refreshes the snapshot.
const DefaultInterval = 10 * time.Second

// Probe periodically queries the ML capability endpoint.
type Probe struct {
	client   interfaces.MLClient
	interval time.Duration
	logger   arbor.ILogger

	snapshot   atomic.Pointer[models.CapabilitySnapshot]
	generation atomic.Uint64
	cancel     context.CancelFunc
}

// NewProbe creates a capability probe. interval <= 0 selects the default.
func NewProbe(client interfaces.MLClient, interval time.Duration, logger arbor.ILogger) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Probe{
		client:   client,
		interval: interval,
		logger:   logger,
	}
	p.snapshot.Store(&models.CapabilitySnapshot{})
	return p
}

var _ interfaces.CapabilitySource = (*Probe)(nil)

// Snapshot returns the most recent capability snapshot. A zero Generation
// means the probe has not produced one yet; consumers fall back to their
// configured defaults.
func (p *Probe) Snapshot() models.CapabilitySnapshot {
	return *p.snapshot.Load()
}

// Start launches the background refresh loop. It probes once immediately so
// pipelines started right after boot see a snapshot.
func (p *Probe) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	common.SafeGoWithContext(ctx, p.logger, "capability-probe", func() {
		p.refresh(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug().Msg("Capability probe stopped")
				return
			case <-ticker.C:
				p.refresh(ctx)
			}
		}
	})
}

// Stop halts the refresh loop.
func (p *Probe) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// refresh queries the capability endpoint and publishes a new snapshot.
// Unreachable service means readiness=false; pipelines may still start and
// GPU workers will retry until readiness returns.
func (p *Probe) refresh(ctx context.Context) {
	previous := p.Snapshot()

	snap, err := p.client.Capability(ctx)
	if err != nil {
		if previous.Ready || previous.Generation == 0 {
			p.logger.Warn().Err(err).Msg("ML service unreachable, marking not ready")
		}
		down := models.CapabilitySnapshot{
			SafeBatch:   previous.SafeBatch,
			Ready:       false,
			Generation:  p.generation.Add(1),
			RefreshedAt: time.Now(),
		}
		p.snapshot.Store(&down)
		return
	}

	snap.Generation = p.generation.Add(1)
	p.snapshot.Store(&snap)

	if snap.Ready != previous.Ready {
		p.logger.Info().
			Bool("ready", snap.Ready).
			Int("safe_batch", snap.SafeBatch).
			Msg("ML service readiness changed")
	}
}
