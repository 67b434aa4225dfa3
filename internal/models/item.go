package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileKind is the detected image category of a file item.
type FileKind string

const (
	KindRaw   FileKind = "raw"
	KindJPEG  FileKind = "jpeg"
	KindPNG   FileKind = "png"
	KindOther FileKind = "other"
)

// imageExtensions is the canonical definition of "image" for the scanner.
// Extensions are matched case-insensitively.
var imageExtensions = map[string]FileKind{
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".png":  KindPNG,
	".bmp":  KindOther,
	".gif":  KindOther,
	".webp": KindOther,
	".heic": KindOther,
	".dng":  KindRaw,
}

// IsImagePath reports whether the path carries a supported image extension.
func IsImagePath(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// KindForPath returns the detected kind for a path, or KindOther for
// unrecognized extensions.
func KindForPath(path string) FileKind {
	if kind, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return KindOther
}

// FileItem traverses the ingestion pipeline. The hash is set before the item
// reaches the ML queue; vector and payload are set before the DB queue.
type FileItem struct {
	Path     string // absolute path on disk
	NormPath string // canonical form: forward slashes, case preserved
	Size     int64
	Kind     FileKind
	Hash     string // hex SHA-256 over raw bytes
	Data     []byte // raw bytes, only in flight between CPU and GPU stages
	Metadata map[string]interface{}
	Vector   []float32
	Caption  string
	PointID  string

	// FromCache marks items short-circuited past the ML stage by a dedup
	// cache hit.
	FromCache bool
}

// HashBytes computes the hex SHA-256 content hash.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PointIDFromHash derives the deterministic point id for a content hash:
// the first 128 bits of the SHA-256 rendered as a UUID. Repeated upserts of
// the same content are therefore idempotent at the store level.
func PointIDFromHash(hexHash string) string {
	raw, err := hex.DecodeString(hexHash)
	if err != nil || len(raw) < 16 {
		// Not a hex hash; fall back to a name-based UUID so the derivation
		// stays deterministic.
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hexHash)).String()
	}
	id, _ := uuid.FromBytes(raw[:16])
	return id.String()
}

// NormalizePath converts a path to the canonical forward-slash form used in
// payloads and cache entries.
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}
