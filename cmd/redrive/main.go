// Command redrive moves messages from the dead-letter queue back onto the
// main queue, for use after the cause of permanent failures was fixed
// (bad deploy rolled back, size limit raised, ...). Compression failures
// are invisible to uploaders, so the DLQ is where they become observable.
package main

import (
	"context"
	"log"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[redrive] startup failed: %v", err)
	}
	if cfg.QueueURL == "" || cfg.DLQURL == "" {
		log.Fatalf("[redrive] startup failed: QUEUE_URL and DLQ_URL are required")
	}

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[redrive] startup failed: %v", err)
	}

	moved, err := redrive(ctx, clients.SQS, cfg.DLQURL, cfg.QueueURL)
	if err != nil {
		log.Fatalf("[redrive] failed after moving %d messages: %v", moved, err)
	}
	log.Printf("[redrive] moved %d messages back to %s", moved, cfg.QueueURL)
}

// redrive drains the DLQ until an empty receive. Each message is published
// to the main queue first and deleted from the DLQ only after the publish
// succeeded; a crash in between duplicates the message, which the
// pipeline's idempotent overwrite absorbs.
func redrive(ctx context.Context, client aws.SQSAPI, from, to string) (int, error) {
	publisher := aws.NewPublisher(client, to)

	moved := 0
	for {
		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            sdkaws.String(from),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     1,
		})
		if err != nil {
			return moved, err
		}
		if len(out.Messages) == 0 {
			return moved, nil
		}

		for _, msg := range out.Messages {
			if err := forwardMessage(ctx, publisher, client, from, msg); err != nil {
				return moved, err
			}
			moved++
		}
	}
}

func forwardMessage(ctx context.Context, publisher *aws.Publisher, client aws.SQSAPI, from string, msg sqstypes.Message) error {
	if err := publisher.Send(ctx, sdkaws.ToString(msg.Body), nil); err != nil {
		return err
	}
	_, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      sdkaws.String(from),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}
