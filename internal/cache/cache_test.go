package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

func newTestCache(t *testing.T) *DedupCache {
	t.Helper()
	c, err := New(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testEntry(collection, hash string) *models.CacheEntry {
	return &models.CacheEntry{
		Collection: collection,
		Hash:       hash,
		PointID:    "point-" + hash,
		Vector:     []float32{0.1, 0.2, 0.3},
		Payload: map[string]interface{}{
			"filename": hash + ".jpg",
		},
	}
}

func TestGet_MissReturnsErrCacheMiss(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Get(context.Background(), "holiday", "deadbeef")
	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)
}

func TestPutThenGet_RoundTrips(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, testEntry("holiday", "aaa")))

	got, err := c.Get(ctx, "holiday", "aaa")
	require.NoError(t, err)
	assert.Equal(t, "point-aaa", got.PointID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Vector)
	assert.Equal(t, "aaa.jpg", got.Payload["filename"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGet_ScopedByCollection(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, testEntry("holiday", "aaa")))

	// Same hash, different collection: a miss.
	_, err := c.Get(ctx, "work", "aaa")
	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)
}

func TestPut_Idempotent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, testEntry("holiday", "aaa")))
	require.NoError(t, c.Put(ctx, testEntry("holiday", "aaa")))

	count, err := c.Count(ctx, "holiday")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClear_RemovesOnlyTargetCollection(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, testEntry("holiday", "aaa")))
	require.NoError(t, c.Put(ctx, testEntry("holiday", "bbb")))
	require.NoError(t, c.Put(ctx, testEntry("work", "ccc")))

	removed, err := c.Clear(ctx, "holiday")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := c.Count(ctx, "holiday")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = c.Count(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunGC_NoRewriteIsNotAnError(t *testing.T) {
	c := newTestCache(t)
	assert.NoError(t, c.RunGC())
}

func TestReopen_PersistsEntries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := New(dir, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, testEntry("holiday", "aaa")))
	require.NoError(t, c.Close())

	c, err = New(dir, arbor.NewLogger())
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Get(ctx, "holiday", "aaa")
	require.NoError(t, err)
	assert.Equal(t, "point-aaa", got.PointID)
}
