package models

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImagePath(t *testing.T) {
	assert.True(t, IsImagePath("photos/holiday.jpg"))
	assert.True(t, IsImagePath("photos/HOLIDAY.JPG"))
	assert.True(t, IsImagePath("shot.dng"))
	assert.True(t, IsImagePath("shot.heic"))
	assert.True(t, IsImagePath("anim.webp"))

	assert.False(t, IsImagePath("notes.txt"))
	assert.False(t, IsImagePath("archive.zip"))
	assert.False(t, IsImagePath("noextension"))
	assert.False(t, IsImagePath("movie.mp4"))
}

func TestKindForPath(t *testing.T) {
	assert.Equal(t, KindRaw, KindForPath("a.dng"))
	assert.Equal(t, KindJPEG, KindForPath("a.jpeg"))
	assert.Equal(t, KindJPEG, KindForPath("a.JPG"))
	assert.Equal(t, KindPNG, KindForPath("a.png"))
	assert.Equal(t, KindOther, KindForPath("a.webp"))
}

func TestHashBytes_MatchesSHA256(t *testing.T) {
	data := []byte("the same bytes always hash the same")
	sum := sha256.Sum256(data)

	assert.Equal(t, hex.EncodeToString(sum[:]), HashBytes(data))
	assert.Equal(t, HashBytes(data), HashBytes(data))
}

func TestPointIDFromHash_Deterministic(t *testing.T) {
	hash := HashBytes([]byte("content"))

	id1 := PointIDFromHash(hash)
	id2 := PointIDFromHash(hash)

	assert.Equal(t, id1, id2)

	parsed, err := uuid.Parse(id1)
	require.NoError(t, err)

	// The id must be the first 16 bytes of the digest.
	raw, err := hex.DecodeString(hash)
	require.NoError(t, err)
	expected, err := uuid.FromBytes(raw[:16])
	require.NoError(t, err)
	assert.Equal(t, expected, parsed)
}

func TestPointIDFromHash_DifferentContentDiffers(t *testing.T) {
	a := PointIDFromHash(HashBytes([]byte("a")))
	b := PointIDFromHash(HashBytes([]byte("b")))
	assert.NotEqual(t, a, b)
}

func TestNormalizePath_ForwardSlashes(t *testing.T) {
	assert.Equal(t, "photos/2024/img.jpg", NormalizePath("photos/2024/img.jpg"))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "holiday/abc123", CacheKey("holiday", "abc123"))
	assert.NotEqual(t, CacheKey("a", "x"), CacheKey("b", "x"))
}
