package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyImage builds a deterministic pseudo-random image; noise is the
// hardest content for an encoder, so quality differences show up in size.
func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	jpg := encodeJPEG(t, noisyImage(8, 8), 80)
	pngBytes := encodePNG(t, noisyImage(8, 8))

	f, ok := Sniff(jpg)
	require.True(t, ok)
	assert.Equal(t, JPEG, f)

	f, ok = Sniff(pngBytes)
	require.True(t, ok)
	assert.Equal(t, PNG, f)

	_, ok = Sniff([]byte("definitely not an image"))
	assert.False(t, ok)

	_, ok = Sniff(nil)
	assert.False(t, ok)
}

func TestDecode_CorruptDataIsDecodeError(t *testing.T) {
	// Valid JPEG magic followed by garbage: sniffs fine, decodes never.
	corrupt := append([]byte{0xFF, 0xD8, 0xFF}, []byte("this is not image data at all")...)

	_, _, err := Decode(corrupt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecode_TruncatedImageIsDecodeError(t *testing.T) {
	jpg := encodeJPEG(t, noisyImage(64, 64), 90)

	_, _, err := Decode(jpg[:len(jpg)/3])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	_, _, err := Decode([]byte("plain text pretending to be a .jpg"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCompress_ReducesNoisyJPEG(t *testing.T) {
	src := encodeJPEG(t, noisyImage(128, 128), 95)
	c := Compressor{Quality: 40}

	out, f, err := c.Compress(src)
	require.NoError(t, err)
	assert.Equal(t, JPEG, f)
	assert.Less(t, len(out), len(src))

	// output must still decode as a valid JPEG
	_, _, err = Decode(out)
	require.NoError(t, err)
}

func TestCompress_Deterministic(t *testing.T) {
	src := encodeJPEG(t, noisyImage(64, 64), 90)
	c := Compressor{Quality: 50}

	a, _, err := c.Compress(src)
	require.NoError(t, err)
	b, _, err := c.Compress(src)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a, b), "same input and settings must produce identical bytes")
}

func TestCompress_KeepsSourceFormatByDefault(t *testing.T) {
	src := encodePNG(t, noisyImage(16, 16))
	c := Compressor{Quality: 70}

	out, f, err := c.Compress(src)
	require.NoError(t, err)
	assert.Equal(t, PNG, f)

	sniffed, ok := Sniff(out)
	require.True(t, ok)
	assert.Equal(t, PNG, sniffed)
}

func TestCompress_ConvertsToTargetFormat(t *testing.T) {
	src := encodePNG(t, noisyImage(16, 16))
	c := Compressor{Quality: 70, TargetFormat: JPEG}

	out, f, err := c.Compress(src)
	require.NoError(t, err)
	assert.Equal(t, JPEG, f)

	sniffed, ok := Sniff(out)
	require.True(t, ok)
	assert.Equal(t, JPEG, sniffed)
}

func TestCompress_DownscalesWideImages(t *testing.T) {
	src := encodeJPEG(t, noisyImage(200, 100), 90)
	c := Compressor{Quality: 80, MaxWidth: 100}

	out, _, err := c.Compress(src)
	require.NoError(t, err)

	img, _, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"jpeg": JPEG, "JPG": JPEG, "png": PNG, "WebP": WebP, "": "",
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("tiff")
	assert.Error(t, err)
}

func TestFormatFromContentType(t *testing.T) {
	f, ok := FormatFromContentType("image/jpeg; charset=binary")
	require.True(t, ok)
	assert.Equal(t, JPEG, f)

	_, ok = FormatFromContentType("text/plain")
	assert.False(t, ok)
}
