package interfaces

import (
	"context"

	"github.com/ternarybob/imago/internal/models"
)

// MLClient is the contract with the external ML inference service. The
// service owns embedding and captioning; the pipeline only batches and
// delegates.
type MLClient interface {
	// EmbedBatch submits one ordered image list and returns one result per
	// input, matched by unique id. Implementations must honor ctx
	// cancellation so in-flight calls abort with the pipeline.
	EmbedBatch(ctx context.Context, images []models.MLImage) ([]models.MLResult, error)

	// Capability queries the service's self-reported safe batch size and
	// readiness.
	Capability(ctx context.Context) (models.CapabilitySnapshot, error)
}

// CapabilitySource publishes the most recent capability snapshot.
// Single writer (the probe), many readers.
type CapabilitySource interface {
	Snapshot() models.CapabilitySnapshot
}
