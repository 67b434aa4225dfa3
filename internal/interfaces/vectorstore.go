package interfaces

import (
	"context"

	"github.com/ternarybob/imago/internal/models"
)

// VectorStore is the contract with the vector database. Points share a
// collection namespace with search, but search itself lives outside the
// ingestion core.
type VectorStore interface {
	ListCollections(ctx context.Context) ([]models.CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, vectorSize int, distance string) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)

	// UpsertPoints performs one bulk write into the named collection.
	UpsertPoints(ctx context.Context, collection string, points []models.Point) error
}
