package models

// Distance metrics supported by the vector store.
const (
	DistanceCosine = "Cosine"
	DistanceEuclid = "Euclid"
	DistanceDot    = "Dot"
)

// ValidDistance reports whether the metric name is one the store accepts.
func ValidDistance(distance string) bool {
	switch distance {
	case DistanceCosine, DistanceEuclid, DistanceDot:
		return true
	}
	return false
}

// Point is an (id, vector, payload) triple destined for the vector store.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// CollectionInfo describes a collection in the vector store.
type CollectionInfo struct {
	Name       string `json:"name"`
	VectorSize int    `json:"vector_size,omitempty"`
	Distance   string `json:"distance,omitempty"`
	Points     int64  `json:"points,omitempty"`
}
