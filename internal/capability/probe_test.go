package capability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
)

// fakeML scripts capability responses for the probe.
type fakeML struct {
	mu        sync.Mutex
	snapshots []models.CapabilitySnapshot
	errs      []error
	calls     int
}

func (f *fakeML) EmbedBatch(ctx context.Context, images []models.MLImage) ([]models.MLResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeML) Capability(ctx context.Context) (models.CapabilitySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	if f.errs[i] != nil {
		return models.CapabilitySnapshot{}, f.errs[i]
	}
	return f.snapshots[i], nil
}

func TestSnapshot_ZeroGenerationBeforeFirstProbe(t *testing.T) {
	p := NewProbe(&fakeML{}, time.Hour, arbor.NewLogger())

	snap := p.Snapshot()
	assert.Equal(t, uint64(0), snap.Generation)
	assert.False(t, snap.Ready)
}

func TestRefresh_PublishesSnapshot(t *testing.T) {
	ml := &fakeML{
		snapshots: []models.CapabilitySnapshot{{SafeBatch: 32, Ready: true}},
		errs:      []error{nil},
	}
	p := NewProbe(ml, time.Hour, arbor.NewLogger())

	p.refresh(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, 32, snap.SafeBatch)
	assert.True(t, snap.Ready)
	assert.Equal(t, uint64(1), snap.Generation)
}

func TestRefresh_GenerationAdvancesEveryRefresh(t *testing.T) {
	ml := &fakeML{
		snapshots: []models.CapabilitySnapshot{{SafeBatch: 32, Ready: true}},
		errs:      []error{nil},
	}
	p := NewProbe(ml, time.Hour, arbor.NewLogger())

	p.refresh(context.Background())
	p.refresh(context.Background())

	assert.Equal(t, uint64(2), p.Snapshot().Generation)
}

func TestRefresh_UnreachableKeepsSafeBatchClearsReady(t *testing.T) {
	ml := &fakeML{
		snapshots: []models.CapabilitySnapshot{
			{SafeBatch: 32, Ready: true},
			{},
		},
		errs: []error{nil, errors.New("connection refused")},
	}
	p := NewProbe(ml, time.Hour, arbor.NewLogger())

	p.refresh(context.Background())
	require.True(t, p.Snapshot().Ready)

	p.refresh(context.Background())
	snap := p.Snapshot()
	assert.False(t, snap.Ready)
	assert.Equal(t, 32, snap.SafeBatch, "last known safe batch survives an outage")
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestStartStop(t *testing.T) {
	ml := &fakeML{
		snapshots: []models.CapabilitySnapshot{{SafeBatch: 16, Ready: true}},
		errs:      []error{nil},
	}
	p := NewProbe(ml, 50*time.Millisecond, arbor.NewLogger())

	p.Start(context.Background())
	defer p.Stop()

	// The immediate refresh on Start must publish quickly.
	deadline := time.After(2 * time.Second)
	for p.Snapshot().Generation == 0 {
		select {
		case <-deadline:
			t.Fatal("probe never published a snapshot")
		case <-time.After(10 * time.Millisecond):
		}
	}

	assert.Equal(t, 16, p.Snapshot().SafeBatch)
}
