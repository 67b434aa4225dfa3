package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/imago/internal/models"
)

// ErrCacheMiss is returned when no dedup entry exists for a (collection, hash) pair.
var ErrCacheMiss = errors.New("dedup cache miss")

// DedupCache is the content-addressed store mapping (collection, hash) to
// the tuple needed to rebuild a vector store point without re-running ML.
// Reads are concurrent-safe; writes are atomic at key level. Entries must
// only be written after the referenced point is durably in the store.
type DedupCache interface {
	Get(ctx context.Context, collection, hash string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	Clear(ctx context.Context, collection string) (int, error)
	Count(ctx context.Context, collection string) (int, error)
}
