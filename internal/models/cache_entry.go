package models

import "time"

// CacheEntry is a dedup cache record keyed by (collection, content hash).
// It holds everything needed to rebuild a store point without re-running ML.
// Entries are written only after a successful upsert of the referenced
// point, so a cache hit always corresponds to durable store state.
type CacheEntry struct {
	Key        string `badgerhold:"key"` // collection + "/" + hash
	Collection string `badgerholdIndex:"Collection"`
	Hash       string
	PointID    string
	Vector     []float32
	Payload    map[string]interface{}
	CreatedAt  time.Time
}

// CacheKey builds the composite badger key for a (collection, hash) pair.
func CacheKey(collection, hash string) string {
	return collection + "/" + hash
}
