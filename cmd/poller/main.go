package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/config"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/ledger"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/metrics"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/pipeline"
	s3store "github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage/s3"
)

const ledgerRetention = 72 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[poller] startup failed: %v", err)
	}
	if cfg.QueueURL == "" {
		log.Fatalf("[poller] startup failed: QUEUE_URL is required")
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[poller] startup failed: %v", err)
	}

	var store *s3store.S3Store
	if cfg.S3Endpoint != "" {
		store, err = s3store.New(ctx, s3store.Config{
			Region:       os.Getenv("AWS_REGION"),
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatalf("[poller] startup failed: %v", err)
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

	p := &Poller{
		client:            clients.SQS,
		queueURL:          cfg.QueueURL,
		pipe:              pipeline.New(store, store, opts),
		emitter:           metrics.NewEmitter(clients.CloudWatch, cfg.MetricsNamespace),
		workers:           cfg.WorkerCount,
		maxAttempts:       cfg.MaxDeliveryAttempts,
		processTimeout:    cfg.ProcessTimeout,
		minRetryBackoff:   cfg.MinRetryBackoff,
		visibilityTimeout: cfg.VisibilityTimeout,
	}

	if err := p.Run(ctx); err != nil {
		log.Fatalf("[poller] stopped: %v", err)
	}
	log.Printf("[poller] shut down")
}
