package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/event"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/metrics"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/pipeline"
)

// Processor handles SQS batches and decides each message's fate.
type Processor struct {
	pipe           *pipeline.Pipeline
	emitter        *metrics.Emitter
	maxAttempts    int
	processTimeout time.Duration
}

// NewProcessor creates a worker processor with its collaborators injected.
func NewProcessor(pipe *pipeline.Pipeline, emitter *metrics.Emitter, maxAttempts int, processTimeout time.Duration) *Processor {
	return &Processor{
		pipe:           pipe,
		emitter:        emitter,
		maxAttempts:    maxAttempts,
		processTimeout: processTimeout,
	}
}

// Handle receives an SQS batch and processes each message independently:
// one message's failure never blocks or fails the others. Message IDs
// listed in BatchItemFailures stay on the queue; everything else is
// implicitly acknowledged by the event source mapping.
//
// Failure policy, applied uniformly: neither transient nor permanent
// failures are acknowledged. Transient ones succeed on a later delivery;
// permanent ones are recorded here and routed to the dead-letter queue by
// the broker's redrive policy once the attempt threshold is crossed.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	log.Printf("[worker] received %d SQS messages", len(ev.Records))

	var resp events.SQSEventResponse
	var summary batchSummary

	for _, rec := range ev.Records {
		outcome := p.processRecord(ctx, rec)
		summary.add(outcome)
		if outcome.err != nil {
			p.logFailure(rec, outcome.err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}

	log.Printf("[worker] batch done: processed=%d failed=%d bytes_saved=%d",
		summary.processed, summary.failed, summary.bytesSaved)
	p.emitter.EmitBatch(ctx, summary.processed, summary.failed, summary.bytesSaved)

	return resp, nil
}

// processRecord resolves one SQS message to its upload events and runs the
// pipeline for each, under the per-message timeout.
func (p *Processor) processRecord(ctx context.Context, rec events.SQSMessage) recordOutcome {
	if p.processTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.processTimeout)
		defer cancel()
	}

	uploads, err := event.ParseNotification([]byte(rec.Body))
	if err != nil {
		return recordOutcome{err: err}
	}

	var out recordOutcome
	for _, up := range uploads {
		res, err := p.pipe.Process(ctx, up)
		if err != nil {
			// First failure decides the record's fate. Events already
			// processed in this record are safe to run again on
			// redelivery (idempotent overwrite).
			out.err = err
			return out
		}
		out.processed++
		if !res.Skipped {
			out.bytesSaved += res.OriginalSize - res.CompressedSize
		}
		log.Printf("[worker] compressed %s/%s -> %s (%d -> %d bytes, skipped=%v)",
			up.SourceBucket, up.ObjectKey, res.DestinationKey,
			res.OriginalSize, res.CompressedSize, res.Skipped)
	}
	return out
}

// logFailure escalates severity as the message approaches the dead-letter
// threshold. Attempt accounting is the broker's job; we only read it.
func (p *Processor) logFailure(rec events.SQSMessage, err error) {
	attempt := deliveryAttempt(rec)
	kind := pipeline.Classify(err)
	if attempt >= p.maxAttempts-1 {
		log.Printf("[worker] WARN message %s attempt %d/%d (%s failure, next stop is dead-letter): %v",
			rec.MessageId, attempt, p.maxAttempts, kind, err)
		return
	}
	log.Printf("[worker] message %s attempt %d/%d failed (%s): %v",
		rec.MessageId, attempt, p.maxAttempts, kind, err)
}

func deliveryAttempt(rec events.SQSMessage) int {
	n, err := strconv.Atoi(rec.Attributes["ApproximateReceiveCount"])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
