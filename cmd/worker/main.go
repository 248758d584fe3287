package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/config"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/ledger"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/metrics"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/pipeline"
	s3store "github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage/s3"
)

const ledgerRetention = 72 * time.Hour

func buildProcessor(ctx context.Context) (*Processor, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		return nil, err
	}

	var store *s3store.S3Store
	if cfg.S3Endpoint != "" {
		store, err = s3store.New(ctx, s3store.Config{
			Region:       os.Getenv("AWS_REGION"),
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
	} else {
		store = s3store.NewFromClient(clients.S3)
	}

	opts := pipeline.Options{
		DestBucket:   cfg.DestBucket,
		MaxSizeBytes: cfg.MaxImageSizeBytes,
		Quality:      cfg.CompressionQuality,
		TargetFormat: cfg.Format(),
		MaxWidth:     cfg.MaxWidth,
	}
	if cfg.LedgerTable != "" {
		opts.Ledger = ledger.NewStore(clients.DynamoDB, cfg.LedgerTable, ledgerRetention)
	}

	pipe := pipeline.New(store, store, opts)
	emitter := metrics.NewEmitter(clients.CloudWatch, cfg.MetricsNamespace)

	return NewProcessor(pipe, emitter, cfg.MaxDeliveryAttempts, cfg.ProcessTimeout), nil
}

func main() {
	proc, err := buildProcessor(context.Background())
	if err != nil {
		// Fatal by classification: refuse to start rather than consume
		// messages we cannot correctly handle.
		log.Fatalf("[worker] startup failed: %v", err)
	}

	// If RUN_LOCAL=true, simulate a single SQS delivery for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"Records":[{"s3":{"bucket":{"name":"uploads"},"object":{"key":"sample.jpg","eTag":"etag-1","size":1024}},"eventTime":"2024-01-01T00:00:00Z"}]}`
		}
		ev := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: body},
			},
		}
		resp, err := proc.Handle(context.Background(), ev)
		if err != nil {
			log.Fatalf("[worker] local handler error: %v", err)
		}
		log.Printf("[worker] local run done, %d failed messages", len(resp.BatchItemFailures))
		return
	}

	lambda.Start(proc.Handle)
}
