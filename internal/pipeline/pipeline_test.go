package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/event"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/imaging"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage/memory"
)

const (
	srcBucket  = "uploads"
	destBucket = "compressed"
)

func testJPEG(t *testing.T, w, h, quality int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
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
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func defaultOptions() Options {
	return Options{
		DestBucket:   destBucket,
		MaxSizeBytes: 5 << 20,
		Quality:      50,
	}
}

// seed stores an object in the source store and returns the matching event.
func seed(t *testing.T, src *memory.Store, key string, body []byte) event.UploadEvent {
	t.Helper()
	require.NoError(t, src.Put(context.Background(), srcBucket, key, body, "image/jpeg", nil))
	return event.UploadEvent{
		SourceBucket: srcBucket,
		ObjectKey:    key,
		VersionTag:   src.ETag(srcBucket, key),
		SizeBytes:    int64(len(body)),
		ContentType:  "image/jpeg",
		Timestamp:    time.Now(),
	}
}

func TestProcess_CompressesToSameKey(t *testing.T) {
	src, dst := memory.New(), memory.New()
	original := testJPEG(t, 128, 128, 95)
	ev := seed(t, src, "photos/cat.jpg", original)

	p := New(src, dst, defaultOptions())
	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, "photos/cat.jpg", res.DestinationKey)
	assert.Equal(t, int64(len(original)), res.OriginalSize)
	assert.Less(t, res.CompressedSize, res.OriginalSize)

	body, contentType, ok := dst.Object(destBucket, "photos/cat.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", contentType)
	_, _, err = imaging.Decode(body)
	require.NoError(t, err, "destination object must be a valid image")

	meta := dst.Metadata(destBucket, "photos/cat.jpg")
	assert.Equal(t, ev.VersionTag, meta["original-etag"])
	assert.Equal(t, "50", meta["compression-quality"])
}

func TestProcess_Idempotent(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "a.jpg", testJPEG(t, 64, 64, 90))

	p := New(src, dst, defaultOptions())

	res1, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	first, _, _ := dst.Object(destBucket, res1.DestinationKey)

	// Simulated duplicate delivery: overwrite, never a second object.
	res2, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	second, _, _ := dst.Object(destBucket, res2.DestinationKey)

	assert.Equal(t, res1.DestinationKey, res2.DestinationKey)
	assert.True(t, bytes.Equal(first, second), "reprocessing must overwrite byte-identically")
	assert.Equal(t, 1, dst.Len())
}

func TestProcess_SizeGuardRejectsOnMetadataAlone(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "huge.jpg", testJPEG(t, 8, 8, 90))
	ev.SizeBytes = 100 << 20 // notification says 100 MiB

	fetchesBefore := src.GetCalls()
	p := New(src, dst, defaultOptions())
	_, err := p.Process(context.Background(), ev)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSizeLimitExceeded)
	assert.Equal(t, KindPermanent, Classify(err))
	assert.Equal(t, fetchesBefore, src.GetCalls(), "oversized event must be rejected without fetching")
	assert.Equal(t, 0, dst.Len())
}

func TestProcess_SizeGuardAfterFetchWhenSizeUnknown(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "big.jpg", testJPEG(t, 128, 128, 95))
	ev.SizeBytes = 0 // notification carried no size

	opts := defaultOptions()
	opts.MaxSizeBytes = 16 // smaller than any real JPEG
	p := New(src, dst, opts)

	_, err := p.Process(context.Background(), ev)
	require.ErrorIs(t, err, ErrSizeLimitExceeded)
	assert.Equal(t, 0, dst.Len())
}

func TestProcess_CorruptImageIsPermanent(t *testing.T) {
	src, dst := memory.New(), memory.New()
	corrupt := append([]byte{0xFF, 0xD8, 0xFF}, []byte("garbage, not a scan line in sight")...)
	ev := seed(t, src, "broken.jpg", corrupt)

	p := New(src, dst, defaultOptions())
	_, err := p.Process(context.Background(), ev)

	require.Error(t, err)
	assert.Equal(t, KindPermanent, Classify(err))
	assert.Equal(t, 0, dst.Len(), "no destination object may exist for a failed transform")
}

func TestProcess_UnsupportedDeclaredTypeRejectedBeforeFetch(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "doc.jpg", testJPEG(t, 8, 8, 90))
	ev.ContentType = "application/pdf"

	fetchesBefore := src.GetCalls()
	p := New(src, dst, defaultOptions())
	_, err := p.Process(context.Background(), ev)

	require.ErrorIs(t, err, imaging.ErrUnsupportedFormat)
	assert.Equal(t, KindPermanent, Classify(err))
	assert.Equal(t, fetchesBefore, src.GetCalls())
}

func TestProcess_VanishedObjectIsPermanent(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := event.UploadEvent{
		SourceBucket: srcBucket,
		ObjectKey:    "deleted.jpg",
		VersionTag:   "gone",
		SizeBytes:    128,
		ContentType:  "image/jpeg",
	}

	p := New(src, dst, defaultOptions())
	_, err := p.Process(context.Background(), ev)

	require.Error(t, err)
	assert.Equal(t, KindPermanent, Classify(err))
}

func TestProcess_OverwrittenVersionIsPermanent(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "a.jpg", testJPEG(t, 8, 8, 90))

	// Object replaced after the event fired; the notified version is gone.
	require.NoError(t, src.Put(context.Background(), srcBucket, "a.jpg", testJPEG(t, 16, 16, 90), "image/jpeg", nil))

	p := New(src, dst, defaultOptions())
	_, err := p.Process(context.Background(), ev)

	require.Error(t, err)
	assert.Equal(t, KindPermanent, Classify(err))
}

func TestProcess_WriteFailureIsTransientAndRetrySucceeds(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "a.jpg", testJPEG(t, 32, 32, 90))

	p := New(src, dst, defaultOptions())

	dst.FailPuts(errors.New("destination store unavailable"))
	_, err := p.Process(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
	assert.Equal(t, 0, dst.Len())

	// Simulated redelivery after the store recovered.
	dst.FailPuts(nil)
	_, err = p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, dst.Len())
}

// fakeLedger records calls in memory.
type fakeLedger struct {
	done   map[string]bool
	failed map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{done: map[string]bool{}, failed: map[string]string{}}
}

func (l *fakeLedger) IsDone(ctx context.Context, key string) (bool, error) {
	return l.done[key], nil
}

func (l *fakeLedger) MarkDone(ctx context.Context, key, destKey string, origSize, compSize int64) error {
	l.done[key] = true
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, key, reason string) error {
	l.failed[key] = reason
	return nil
}

func TestProcess_LedgerFastPathSkipsRefetch(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ev := seed(t, src, "a.jpg", testJPEG(t, 32, 32, 90))

	opts := defaultOptions()
	led := newFakeLedger()
	opts.Ledger = led
	p := New(src, dst, opts)

	_, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, led.done[ev.DedupeKey()])

	fetches := src.GetCalls()
	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, fetches, src.GetCalls(), "fast path must not refetch")
}

func TestProcess_PermanentFailureIsRecorded(t *testing.T) {
	src, dst := memory.New(), memory.New()
	corrupt := append([]byte{0xFF, 0xD8, 0xFF}, []byte("still garbage")...)
	ev := seed(t, src, "broken.jpg", corrupt)

	opts := defaultOptions()
	led := newFakeLedger()
	opts.Ledger = led
	p := New(src, dst, opts)

	_, err := p.Process(context.Background(), ev)
	require.Error(t, err)
	assert.NotEmpty(t, led.failed[ev.DedupeKey()])
}

func TestDestinationKey(t *testing.T) {
	cases := []struct {
		target imaging.Format
		key    string
		want   string
	}{
		{"", "photos/cat.jpg", "photos/cat.jpg"},
		{imaging.WebP, "photos/cat.jpg", "photos/cat.webp"},
		{imaging.WebP, "photos/cat.webp", "photos/cat.webp"},
		{imaging.JPEG, "photos/cat.jpeg", "photos/cat.jpeg"}, // jpeg alias, no pointless rename
		{imaging.JPEG, "photos/noext", "photos/noext.jpg"},
		{imaging.PNG, "a.b.c.jpg", "a.b.c.png"},
	}
	for _, tc := range cases {
		p := New(nil, nil, Options{TargetFormat: tc.target})
		assert.Equal(t, tc.want, p.DestinationKey(tc.key), "target=%s key=%s", tc.target, tc.key)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindTransient, Classify(context.Canceled))
	assert.Equal(t, KindPermanent, Classify(event.ErrMalformedEvent))
	assert.Equal(t, KindPermanent, Classify(imaging.ErrUnsupportedFormat))
	assert.Equal(t, KindPermanent, Classify(imaging.ErrDecode))
	assert.Equal(t, KindPermanent, Classify(ErrSizeLimitExceeded))
	assert.Equal(t, KindTransient, Classify(errors.New("something unexpected")))

	throttle := &smithy.GenericAPIError{Code: "SlowDown", Message: "slow down"}
	assert.Equal(t, KindTransient, Classify(throttle))

	serverFault := &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer}
	assert.Equal(t, KindTransient, Classify(serverFault))

	wrapped := permanent(StageDecode, errors.New("boom"))
	assert.Equal(t, KindPermanent, Classify(wrapped))
}
