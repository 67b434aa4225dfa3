package collection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// Service manages vector store collections and tracks which one is the
// active ingestion target. The active collection is process state, not
// store state: restarting the service clears it.
type Service struct {
	store interfaces.VectorStore
	cache interfaces.DedupCache

	defaultVectorSize int
	defaultDistance   string

	mu     sync.RWMutex
	active string

	logger arbor.ILogger
}

// NewService creates a collection service. The defaults are applied when a
// create request omits vector size or distance.
func NewService(store interfaces.VectorStore, cache interfaces.DedupCache, defaultVectorSize int, defaultDistance string, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Service{
		store:             store,
		cache:             cache,
		defaultVectorSize: defaultVectorSize,
		defaultDistance:   defaultDistance,
		logger:            logger,
	}
}

// Active returns the currently selected collection, or "" when none is set.
func (s *Service) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// List returns the collections known to the vector store, with the active
// one flagged by name for the caller.
func (s *Service) List(ctx context.Context) ([]models.CollectionInfo, string, error) {
	infos, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list collections: %w", err)
	}
	return infos, s.Active(), nil
}

// Create creates a collection in the vector store. Missing vector size or
// distance fall back to the configured defaults.
func (s *Service) Create(ctx context.Context, name string, vectorSize int, distance string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if vectorSize <= 0 {
		vectorSize = s.defaultVectorSize
	}
	if distance == "" {
		distance = s.defaultDistance
	}
	if !models.ValidDistance(distance) {
		return fmt.Errorf("unknown distance metric: %s", distance)
	}

	if err := s.store.CreateCollection(ctx, name, vectorSize, distance); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	s.logger.Info().
		Str("collection", name).
		Int("vector_size", vectorSize).
		Str("distance", distance).
		Msg("Collection created")
	return nil
}

// Delete removes a collection from the vector store. If it was the active
// collection the selection is cleared. Cached dedup entries for the
// collection are left in place; recreating the collection under the same
// name makes them valid again, and ClearCache exists for the explicit case.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}

	s.mu.Lock()
	if s.active == name {
		s.active = ""
	}
	s.mu.Unlock()

	s.logger.Info().Str("collection", name).Msg("Collection deleted")
	return nil
}

// Select marks an existing collection as the active ingestion target.
func (s *Service) Select(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	exists, err := s.store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("collection %s does not exist", name)
	}

	s.mu.Lock()
	s.active = name
	s.mu.Unlock()

	s.logger.Info().Str("collection", name).Msg("Collection selected")
	return nil
}

// ClearCache drops the dedup cache entries for one collection, forcing the
// next ingest of the same bytes to re-embed.
func (s *Service) ClearCache(ctx context.Context, name string) (int, error) {
	removed, err := s.cache.Clear(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to clear dedup cache for %s: %w", name, err)
	}

	s.logger.Info().
		Str("collection", name).
		Int("removed", removed).
		Msg("Dedup cache cleared")
	return removed, nil
}
