package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/ternarybob/imago/internal/models"

	// Decoders for dimension probing. DNG and HEIC are intentionally not
	// registered; they take the raw fast path below.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// mimeByExtension maps supported extensions to their MIME type.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".dng":  "image/x-adobe-dng",
}

// extractMetadata builds the payload metadata for a file item: file facts,
// decoded dimensions where a decoder exists, and best-effort EXIF fields.
// DNG takes a fast path that skips the non-RAW-capable decoders and flags
// the payload as raw. A decode failure on a decodable kind is a
// decode_error for the item.
func extractMetadata(item *models.FileItem, data []byte) (map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(item.Path))

	meta := map[string]interface{}{
		"filename":  filepath.Base(item.Path),
		"file_path": item.NormPath,
		"file_size": int64(len(data)),
		"extension": strings.TrimPrefix(ext, "."),
		"mime_type": mimeByExtension[ext],
		"raw":       item.Kind == models.KindRaw,
	}

	switch {
	case item.Kind == models.KindRaw:
		// RAW fast path: no decoder pass, EXIF only (DNG is TIFF-based).
	case ext == ".heic":
		// No registered decoder; dimensions unavailable.
	default:
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s image: %w", strings.TrimPrefix(ext, "."), err)
		}
		meta["width"] = cfg.Width
		meta["height"] = cfg.Height
		meta["format"] = format
	}

	// EXIF is best effort: many images legitimately carry none.
	if fields := extractEXIF(data); len(fields) > 0 {
		for k, v := range fields {
			meta[k] = v
		}
	}

	return meta, nil
}

// exifFields maps payload keys to the EXIF tags they come from.
var exifFields = map[string]exif.FieldName{
	"camera_make":   exif.Make,
	"camera_model":  exif.Model,
	"lens_model":    exif.LensModel,
	"iso":           exif.ISOSpeedRatings,
	"aperture":      exif.FNumber,
	"shutter_speed": exif.ExposureTime,
	"focal_length":  exif.FocalLength,
}

// extractEXIF pulls the camera fields the search payload cares about.
// Any parse failure returns what was collected so far.
func extractEXIF(data []byte) map[string]interface{} {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	fields := make(map[string]interface{})
	for key, name := range exifFields {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if val, err := tag.StringVal(); err == nil {
			fields[key] = val
			continue
		}
		fields[key] = strings.Trim(tag.String(), "\"")
	}

	if taken, err := x.DateTime(); err == nil {
		fields["captured_at"] = taken.Format(time.RFC3339)
	}

	return fields
}
