package common

import (
	"github.com/google/uuid"
)

// NewUploadID generates a unique id for a staged multipart upload batch.
// Format: upload_<uuid>
func NewUploadID() string {
	return "upload_" + uuid.New().String()
}
