package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/imago/internal/models"
)

func TestGPUWorker_ActiveLimit_NoSnapshotUsesConfigured(t *testing.T) {
	w := &gpuWorker{}
	assert.Equal(t, 128, w.activeLimit(models.CapabilitySnapshot{}, 128))
}

func TestGPUWorker_ActiveLimit_CapsAtSafeBatch(t *testing.T) {
	w := &gpuWorker{}
	snap := models.CapabilitySnapshot{SafeBatch: 32, Ready: true, Generation: 1}
	assert.Equal(t, 32, w.activeLimit(snap, 128))
}

func TestGPUWorker_ActiveLimit_ReductionSurvivesRefresh(t *testing.T) {
	w := &gpuWorker{}
	snap := models.CapabilitySnapshot{SafeBatch: 64, Ready: true, Generation: 1}
	assert.Equal(t, 64, w.activeLimit(snap, 128))

	w.halve()
	w.halve()
	assert.Equal(t, 16, w.activeLimit(snap, 128))

	// A refresh at the same safe batch keeps the reduction.
	snap.Generation = 2
	assert.Equal(t, 16, w.activeLimit(snap, 128))

	// A snapshot that actually raises the safe batch clears it.
	snap.Generation = 3
	snap.SafeBatch = 96
	assert.Equal(t, 96, w.activeLimit(snap, 128))
}

func TestGPUWorker_ActiveLimit_NeverBelowOne(t *testing.T) {
	w := &gpuWorker{}
	snap := models.CapabilitySnapshot{SafeBatch: 2, Ready: true, Generation: 1}
	assert.Equal(t, 2, w.activeLimit(snap, 128))

	w.halve()
	w.halve()
	assert.Equal(t, 1, w.activeLimit(snap, 128))
}
