package imaging

import (
	"fmt"
	"strings"
)

// Format is an image encoding the pipeline can decode and re-encode.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WebP Format = "webp"
)

// ParseFormat resolves a configured format name ("jpeg", "jpg", "png",
// "webp", case-insensitive). Empty input means "keep the source format".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

// FormatFromContentType maps a MIME content type to a Format,
// reporting false for anything the pipeline cannot decode.
func FormatFromContentType(ct string) (Format, bool) {
	// strip parameters like "; charset=..."
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.ToLower(strings.TrimSpace(ct)) {
	case "image/jpeg", "image/jpg":
		return JPEG, true
	case "image/png":
		return PNG, true
	case "image/webp":
		return WebP, true
	default:
		return "", false
	}
}

// ContentType reports the canonical MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case WebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension reports the canonical file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	case WebP:
		return ".webp"
	default:
		return ""
	}
}
