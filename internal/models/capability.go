package models

import "time"

// CapabilitySnapshot is the periodically refreshed record of the ML
// service's self-reported safe batch size and readiness. Single writer
// (the capability probe), many readers (GPU workers, health handler).
type CapabilitySnapshot struct {
	SafeBatch   int       `json:"safe_batch"`
	Ready       bool      `json:"ready"`
	Generation  uint64    `json:"generation"` // bumped on every successful refresh
	RefreshedAt time.Time `json:"refreshed_at"`
}

// MLImage is one entry of a batch embed request.
type MLImage struct {
	ImageBase64 string `json:"image_base64"`
	Filename    string `json:"filename"`
	UniqueID    string `json:"unique_id"`
}

// MLResult is one entry of a batch embed response, matched to its input by
// UniqueID.
type MLResult struct {
	UniqueID  string    `json:"unique_id"`
	Embedding []float32 `json:"embedding"`
	Caption   string    `json:"caption"`
	Error     string    `json:"error,omitempty"`
}
