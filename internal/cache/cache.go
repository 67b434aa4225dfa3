// Package cache provides the on-disk content-addressed dedup cache.
// Entries map (collection, content hash) to the point tuple produced by a
// previous ingestion, so re-ingesting identical bytes skips the ML service
// entirely.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DedupCache implements interfaces.DedupCache on a badgerhold store.
// Badger gives key-level atomic writes; the cache is content-keyed so
// concurrent writers of the same key converge on identical values and
// last-writer-wins is safe.
type DedupCache struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// New opens (or creates) the dedup cache at the given directory.
func New(dir string, logger arbor.ILogger) (*DedupCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil // disable default badger logger, arbor is used instead

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedup cache: %w", err)
	}

	logger.Debug().Str("dir", dir).Msg("Dedup cache opened")

	return &DedupCache{
		store:  store,
		logger: logger,
	}, nil
}

var _ interfaces.DedupCache = (*DedupCache)(nil)

// Get returns the cache entry for (collection, hash), or ErrCacheMiss.
func (c *DedupCache) Get(ctx context.Context, collection, hash string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := c.store.Get(models.CacheKey(collection, hash), &entry)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

// Put writes a cache entry. Callers must only invoke this after the
// referenced point has been durably upserted into the vector store.
func (c *DedupCache) Put(ctx context.Context, entry *models.CacheEntry) error {
	if entry.Key == "" {
		entry.Key = models.CacheKey(entry.Collection, entry.Hash)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := c.store.Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Clear removes all entries for a collection and returns the number removed.
func (c *DedupCache) Clear(ctx context.Context, collection string) (int, error) {
	count, err := c.store.Count(&models.CacheEntry{}, badgerhold.Where("Collection").Eq(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	removed := int(count)

	if err := c.store.DeleteMatching(&models.CacheEntry{}, badgerhold.Where("Collection").Eq(collection)); err != nil {
		return 0, fmt.Errorf("failed to clear cache for collection %s: %w", collection, err)
	}

	c.logger.Info().
		Str("collection", collection).
		Int("entries", removed).
		Msg("Dedup cache cleared")
	return removed, nil
}

// Count returns the number of entries for a collection.
func (c *DedupCache) Count(ctx context.Context, collection string) (int, error) {
	count, err := c.store.Count(&models.CacheEntry{}, badgerhold.Where("Collection").Eq(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return int(count), nil
}

// RunGC triggers one badger value-log garbage collection cycle. Badger
// returns ErrNoRewrite when there is nothing to collect; that is not an
// error for callers.
func (c *DedupCache) RunGC() error {
	err := c.store.Badger().RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return err
	}
	return nil
}

// Close closes the underlying store.
func (c *DedupCache) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
