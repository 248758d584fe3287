package main

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/event"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/metrics"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/pipeline"
)

const receiveBatchSize = 10

// Poller is the self-hosted consumption loop: long-polls the queue,
// dispatches each message to a fixed-size pool, and acknowledges only
// after the full pipeline succeeded. The same contract the Lambda event
// source mapping provides, realized by hand.
type Poller struct {
	client   aws.SQSAPI
	queueURL string
	pipe     *pipeline.Pipeline
	emitter  *metrics.Emitter

	workers           int
	maxAttempts       int
	processTimeout    time.Duration
	minRetryBackoff   time.Duration
	visibilityTimeout time.Duration
}

// Run receives until ctx is cancelled. Messages in flight when the context
// ends are simply abandoned: unacknowledged, they become visible again
// after the visibility timeout and are redelivered.
func (p *Poller) Run(ctx context.Context) error {
	log.Printf("[poller] consuming %s with %d workers", p.queueURL, p.workers)

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for {
		out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            sdkaws.String(p.queueURL),
			MaxNumberOfMessages: receiveBatchSize,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(p.visibilityTimeout / time.Second),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			log.Printf("[poller] receive failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range out.Messages {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				p.handleMessage(ctx, m)
			}(msg)
		}
	}
}

// handleMessage runs one message end to end. Success is the only path that
// deletes it; every failure leaves it for redelivery, with the visibility
// shrunk for transient failures so the retry comes sooner (bounded below
// by the minimum backoff).
func (p *Poller) handleMessage(ctx context.Context, msg sqstypes.Message) {
	msgID := sdkaws.ToString(msg.MessageId)
	receipt := sdkaws.ToString(msg.ReceiptHandle)
	attempt := receiveCount(msg)

	procCtx := ctx
	if p.processTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.processTimeout)
		defer cancel()
	}

	// Heartbeat: keep the message invisible while we are still working on
	// it, so a slow transform is not redelivered mid-flight.
	stopHeartbeat := p.extendWhileProcessing(ctx, receipt)
	err := p.processBody(procCtx, sdkaws.ToString(msg.Body))
	stopHeartbeat()

	if err == nil {
		if _, derr := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(p.queueURL),
			ReceiptHandle: sdkaws.String(receipt),
		}); derr != nil {
			// The work is durable; the duplicate delivery this causes is
			// absorbed by the idempotent overwrite.
			log.Printf("[poller] ack failed for %s, expect a redelivery: %v", msgID, derr)
		}
		return
	}

	kind := pipeline.Classify(err)
	if attempt >= p.maxAttempts-1 {
		log.Printf("[poller] WARN message %s attempt %d/%d (%s failure, next stop is dead-letter): %v",
			msgID, attempt, p.maxAttempts, kind, err)
	} else {
		log.Printf("[poller] message %s attempt %d/%d failed (%s): %v",
			msgID, attempt, p.maxAttempts, kind, err)
	}

	if kind == pipeline.KindTransient {
		// Retry sooner than the full visibility timeout, but never sooner
		// than the minimum backoff.
		p.changeVisibility(ctx, receipt, p.minRetryBackoff)
	}
	// Permanent failures keep the full visibility timeout; the redrive
	// policy moves them to the DLQ once the attempt threshold is crossed.
}

// processBody parses the notification and runs the pipeline per upload
// event, emitting metrics for the delivery.
func (p *Poller) processBody(ctx context.Context, body string) error {
	uploads, err := event.ParseNotification([]byte(body))
	if err != nil {
		return err
	}

	var processed int
	var bytesSaved int64
	for _, up := range uploads {
		res, perr := p.pipe.Process(ctx, up)
		if perr != nil {
			p.emitter.EmitBatch(ctx, processed, 1, bytesSaved)
			return perr
		}
		processed++
		if !res.Skipped {
			bytesSaved += res.OriginalSize - res.CompressedSize
		}
		log.Printf("[poller] compressed %s/%s -> %s (%d -> %d bytes, skipped=%v)",
			up.SourceBucket, up.ObjectKey, res.DestinationKey,
			res.OriginalSize, res.CompressedSize, res.Skipped)
	}
	p.emitter.EmitBatch(ctx, processed, 0, bytesSaved)
	return nil
}

// extendWhileProcessing renews the visibility timeout at half-interval
// ticks until the returned stop function is called.
func (p *Poller) extendWhileProcessing(ctx context.Context, receipt string) (stop func()) {
	if p.visibilityTimeout <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(p.visibilityTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.changeVisibility(ctx, receipt, p.visibilityTimeout)
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (p *Poller) changeVisibility(ctx context.Context, receipt string, d time.Duration) {
	_, err := p.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          sdkaws.String(p.queueURL),
		ReceiptHandle:     sdkaws.String(receipt),
		VisibilityTimeout: int32(d / time.Second),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[poller] change visibility failed: %v", err)
	}
}

func receiveCount(msg sqstypes.Message) int {
	n, err := strconv.Atoi(msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
