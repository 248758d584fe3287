package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// ErrUnsupportedFormat indicates bytes that are not in any format the
// pipeline can decode.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrDecode indicates corrupt or truncated image data.
var ErrDecode = errors.New("image decode failed")

// Sniff detects the image format from the leading magic bytes.
func Sniff(b []byte) (Format, bool) {
	switch {
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return JPEG, true
	case len(b) >= 8 && bytes.Equal(b[:8], []byte("\x89PNG\r\n\x1a\n")):
		return PNG, true
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return WebP, true
	default:
		return "", false
	}
}

// Decode parses raw bytes into a raster image. The format is sniffed from
// the bytes themselves; the declared content type is not trusted. Corrupt
// input yields an error, never a panic (some codecs panic on truncated
// data, which would otherwise take the whole batch down).
func Decode(b []byte) (img image.Image, f Format, err error) {
	f, ok := Sniff(b)
	if !ok {
		return nil, "", ErrUnsupportedFormat
	}

	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %s codec panic: %v", ErrDecode, f, r)
		}
	}()

	r := bytes.NewReader(b)
	switch f {
	case JPEG:
		img, err = jpeg.Decode(r)
	case PNG:
		img, err = png.Decode(r)
	case WebP:
		img, err = webp.Decode(r)
	}
	if err != nil {
		return nil, f, fmt.Errorf("%w: %s: %v", ErrDecode, f, err)
	}
	return img, f, nil
}

// Compressor re-encodes images at a fixed quality. Given identical input
// bytes and identical settings the output bytes are identical, which is
// what makes redelivered messages safe to reprocess.
type Compressor struct {
	Quality      int    // 1..100 encoder quality knob
	TargetFormat Format // empty: keep the source format
	MaxWidth     int    // 0: never downscale
}

// Compress decodes src and re-encodes it, returning the encoded bytes and
// the output format.
func (c Compressor) Compress(src []byte) ([]byte, Format, error) {
	img, srcFormat, err := Decode(src)
	if err != nil {
		return nil, "", err
	}

	if c.MaxWidth > 0 && img.Bounds().Dx() > c.MaxWidth {
		img = imaging.Resize(img, c.MaxWidth, 0, imaging.Lanczos)
	}

	out := srcFormat
	if c.TargetFormat != "" {
		out = c.TargetFormat
	}

	var buf bytes.Buffer
	switch out {
	case JPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.Quality})
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case WebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(c.Quality)})
	default:
		return nil, "", fmt.Errorf("encode: %w: %q", ErrUnsupportedFormat, out)
	}
	if err != nil {
		return nil, out, fmt.Errorf("encode %s: %w", out, err)
	}
	return buf.Bytes(), out, nil
}
