package collection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/models"
)

// fakeStore tracks collections in memory.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]models.CollectionInfo
	listErr     error
}

func newFakeStore(names ...string) *fakeStore {
	s := &fakeStore{collections: make(map[string]models.CollectionInfo)}
	for _, name := range names {
		s.collections[name] = models.CollectionInfo{Name: name}
	}
	return s
}

func (s *fakeStore) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	infos := make([]models.CollectionInfo, 0, len(s.collections))
	for _, info := range s.collections {
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *fakeStore) CreateCollection(ctx context.Context, name string, vectorSize int, distance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = models.CollectionInfo{Name: name, VectorSize: vectorSize, Distance: distance}
	return nil
}

func (s *fakeStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *fakeStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeStore) UpsertPoints(ctx context.Context, collection string, points []models.Point) error {
	return nil
}

// fakeCache counts Clear calls.
type fakeCache struct {
	cleared map[string]int
}

func (c *fakeCache) Get(ctx context.Context, collection, hash string) (*models.CacheEntry, error) {
	return nil, errors.New("not used")
}

func (c *fakeCache) Put(ctx context.Context, entry *models.CacheEntry) error { return nil }

func (c *fakeCache) Clear(ctx context.Context, collection string) (int, error) {
	if c.cleared == nil {
		c.cleared = make(map[string]int)
	}
	c.cleared[collection]++
	return 7, nil
}

func (c *fakeCache) Count(ctx context.Context, collection string) (int, error) { return 0, nil }

func newTestService(store *fakeStore) *Service {
	return NewService(store, &fakeCache{}, 512, models.DistanceCosine, arbor.NewLogger())
}

func TestCreate_AppliesDefaults(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	require.NoError(t, svc.Create(context.Background(), "holiday", 0, ""))

	info := store.collections["holiday"]
	assert.Equal(t, 512, info.VectorSize)
	assert.Equal(t, models.DistanceCosine, info.Distance)
}

func TestCreate_RejectsEmptyName(t *testing.T) {
	svc := newTestService(newFakeStore())
	assert.Error(t, svc.Create(context.Background(), "  ", 0, ""))
}

func TestCreate_RejectsUnknownDistance(t *testing.T) {
	svc := newTestService(newFakeStore())
	assert.Error(t, svc.Create(context.Background(), "holiday", 512, "Manhattan"))
}

func TestSelect_RequiresExistingCollection(t *testing.T) {
	svc := newTestService(newFakeStore("holiday"))

	assert.Error(t, svc.Select(context.Background(), "missing"))
	assert.Empty(t, svc.Active())

	require.NoError(t, svc.Select(context.Background(), "holiday"))
	assert.Equal(t, "holiday", svc.Active())
}

func TestDelete_ClearsActiveSelection(t *testing.T) {
	svc := newTestService(newFakeStore("holiday", "work"))
	require.NoError(t, svc.Select(context.Background(), "holiday"))

	require.NoError(t, svc.Delete(context.Background(), "holiday"))
	assert.Empty(t, svc.Active())
}

func TestDelete_OtherCollectionKeepsSelection(t *testing.T) {
	svc := newTestService(newFakeStore("holiday", "work"))
	require.NoError(t, svc.Select(context.Background(), "holiday"))

	require.NoError(t, svc.Delete(context.Background(), "work"))
	assert.Equal(t, "holiday", svc.Active())
}

func TestList_ReportsActive(t *testing.T) {
	svc := newTestService(newFakeStore("holiday"))
	require.NoError(t, svc.Select(context.Background(), "holiday"))

	infos, active, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, 1)
	assert.Equal(t, "holiday", active)
}

func TestClearCache_DelegatesToCache(t *testing.T) {
	cache := &fakeCache{}
	svc := NewService(newFakeStore("holiday"), cache, 512, models.DistanceCosine, arbor.NewLogger())

	removed, err := svc.ClearCache(context.Background(), "holiday")
	require.NoError(t, err)
	assert.Equal(t, 7, removed)
	assert.Equal(t, 1, cache.cleared["holiday"])
}
