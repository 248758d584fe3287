package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strconv"
	"strings"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/event"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/imaging"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage"
)

// Job is the unit of work derived from an UploadEvent. Never persisted.
type Job struct {
	DedupeKey    string
	Quality      int
	TargetFormat imaging.Format
}

// Result describes one successful pipeline run.
type Result struct {
	DestinationKey string
	OriginalSize   int64
	CompressedSize int64
	Skipped        bool // true when the ledger already had this dedupe key done
}

// Ledger is the optional processed-object record store. Lookup serves the
// duplicate fast path; MarkDone/MarkFailed leave an audit trail. A nil
// Ledger disables all three — correctness never depends on it.
type Ledger interface {
	// IsDone reports whether the dedupe key has already been processed to
	// completion.
	IsDone(ctx context.Context, dedupeKey string) (bool, error)
	MarkDone(ctx context.Context, dedupeKey, destinationKey string, originalSize, compressedSize int64) error
	MarkFailed(ctx context.Context, dedupeKey, reason string) error
}

// Options configure a Pipeline.
type Options struct {
	DestBucket   string
	MaxSizeBytes int64 // 0: unlimited
	Quality      int
	TargetFormat imaging.Format
	MaxWidth     int
	Ledger       Ledger // nil: disabled
}

// Pipeline fetches a source object, compresses it and writes the result to
// the destination store. All collaborators are injected; nothing here is a
// process-wide singleton.
type Pipeline struct {
	src  storage.Store
	dst  storage.Store
	opts Options
	comp imaging.Compressor
}

// New builds a Pipeline over the given source and destination stores.
func New(src, dst storage.Store, opts Options) *Pipeline {
	return &Pipeline{
		src:  src,
		dst:  dst,
		opts: opts,
		comp: imaging.Compressor{
			Quality:      opts.Quality,
			TargetFormat: opts.TargetFormat,
			MaxWidth:     opts.MaxWidth,
		},
	}
}

// JobFor derives the compression job for an event.
func (p *Pipeline) JobFor(ev event.UploadEvent) Job {
	return Job{
		DedupeKey:    ev.DedupeKey(),
		Quality:      p.opts.Quality,
		TargetFormat: p.opts.TargetFormat,
	}
}

// Process runs the full fetch→validate→decode→compress→write sequence for
// one event. Every returned error is a classified *Failure; the caller
// turns the Kind into an ack/no-ack decision.
//
// The sequence is deterministic given identical source bytes and settings,
// and the destination key is derived purely from the object key, so a
// redelivered message produces a byte-identical overwrite.
func (p *Pipeline) Process(ctx context.Context, ev event.UploadEvent) (*Result, error) {
	job := p.JobFor(ev)

	// Reject on metadata alone when the notification carried a size;
	// no point fetching bytes we will refuse to decode.
	if p.opts.MaxSizeBytes > 0 && ev.SizeBytes > p.opts.MaxSizeBytes {
		err := permanent(StageValidate, fmt.Errorf("%w: %d > %d bytes",
			ErrSizeLimitExceeded, ev.SizeBytes, p.opts.MaxSizeBytes))
		p.recordFailed(ctx, job.DedupeKey, err)
		return nil, err
	}
	if ev.ContentType != "" {
		if _, ok := imaging.FormatFromContentType(ev.ContentType); !ok {
			err := permanent(StageValidate, fmt.Errorf("%w: declared content type %q",
				imaging.ErrUnsupportedFormat, ev.ContentType))
			p.recordFailed(ctx, job.DedupeKey, err)
			return nil, err
		}
	}

	// Duplicate fast path: an already-completed dedupe key means the
	// destination object exists with exactly the bytes a rerun would
	// produce, so fetching and transforming again buys nothing.
	if p.opts.Ledger != nil {
		done, err := p.opts.Ledger.IsDone(ctx, job.DedupeKey)
		if err != nil {
			log.Printf("[pipeline] ledger lookup failed for %s, proceeding without fast path: %v", job.DedupeKey, err)
		} else if done {
			return &Result{
				DestinationKey: p.DestinationKey(ev.ObjectKey),
				Skipped:        true,
			}, nil
		}
	}

	body, info, err := p.src.Get(ctx, ev.SourceBucket, ev.ObjectKey, ev.VersionTag)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The version the event described was deleted or overwritten
			// after the notification fired. Retrying cannot bring it back.
			err = permanent(StageFetch, err)
			p.recordFailed(ctx, job.DedupeKey, err)
			return nil, err
		}
		return nil, transient(StageFetch, err)
	}

	// The notification may omit the size; guard again on the real bytes.
	if p.opts.MaxSizeBytes > 0 && int64(len(body)) > p.opts.MaxSizeBytes {
		err := permanent(StageValidate, fmt.Errorf("%w: %d > %d bytes",
			ErrSizeLimitExceeded, len(body), p.opts.MaxSizeBytes))
		p.recordFailed(ctx, job.DedupeKey, err)
		return nil, err
	}
	if info.ContentType != "" && !strings.HasPrefix(info.ContentType, "application/octet-stream") {
		if _, ok := imaging.FormatFromContentType(info.ContentType); !ok {
			err := permanent(StageValidate, fmt.Errorf("%w: stored content type %q",
				imaging.ErrUnsupportedFormat, info.ContentType))
			p.recordFailed(ctx, job.DedupeKey, err)
			return nil, err
		}
	}

	compressed, outFormat, err := p.comp.Compress(body)
	if err != nil {
		// Corrupt or unsupported bytes stay corrupt on redelivery.
		stage := StageCompress
		if errors.Is(err, imaging.ErrUnsupportedFormat) || errors.Is(err, imaging.ErrDecode) {
			stage = StageDecode
		}
		err = permanent(stage, err)
		p.recordFailed(ctx, job.DedupeKey, err)
		return nil, err
	}

	destKey := p.DestinationKey(ev.ObjectKey)
	metadata := map[string]string{
		"original-etag":       ev.VersionTag,
		"original-size":       strconv.FormatInt(int64(len(body)), 10),
		"compression-quality": strconv.Itoa(job.Quality),
	}
	if err := p.dst.Put(ctx, p.opts.DestBucket, destKey, compressed, outFormat.ContentType(), metadata); err != nil {
		return nil, transient(StageWrite, err)
	}

	res := &Result{
		DestinationKey: destKey,
		OriginalSize:   int64(len(body)),
		CompressedSize: int64(len(compressed)),
	}

	if p.opts.Ledger != nil {
		// Best effort: a ledger write failure must not fail a message whose
		// destination object is already durable.
		if err := p.opts.Ledger.MarkDone(ctx, job.DedupeKey, destKey, res.OriginalSize, res.CompressedSize); err != nil {
			log.Printf("[pipeline] ledger mark-done failed for %s: %v", job.DedupeKey, err)
		}
	}
	return res, nil
}

// DestinationKey derives the output key from the source key: same relative
// path, extension swapped only when the configured target format changes
// the family. Purely a function of its inputs and the fixed configuration.
func (p *Pipeline) DestinationKey(objectKey string) string {
	if p.opts.TargetFormat == "" {
		return objectKey
	}
	ext := path.Ext(objectKey)
	want := p.opts.TargetFormat.Extension()
	if ext == "" {
		return objectKey + want
	}
	if sniffed, err := imaging.ParseFormat(strings.TrimPrefix(ext, ".")); err == nil && sniffed == p.opts.TargetFormat {
		return objectKey
	}
	return strings.TrimSuffix(objectKey, ext) + want
}

func (p *Pipeline) recordFailed(ctx context.Context, dedupeKey string, cause error) {
	if p.opts.Ledger == nil {
		return
	}
	if err := p.opts.Ledger.MarkFailed(ctx, dedupeKey, cause.Error()); err != nil {
		log.Printf("[pipeline] ledger mark-failed failed for %s: %v", dedupeKey, err)
	}
}
