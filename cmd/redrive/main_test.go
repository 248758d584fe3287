package main

import (
	"context"
	"fmt"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueMock keeps per-queue message slices and serves them in receive order.
type queueMock struct {
	queues map[string][]sqstypes.Message
}

func newQueueMock() *queueMock {
	return &queueMock{queues: map[string][]sqstypes.Message{}}
}

func (m *queueMock) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q := sdkaws.ToString(in.QueueUrl)
	n := len(m.queues[q])
	m.queues[q] = append(m.queues[q], sqstypes.Message{
		MessageId:     sdkaws.String(fmt.Sprintf("%s-%d", q, n)),
		ReceiptHandle: sdkaws.String(fmt.Sprintf("receipt-%s-%d", q, n)),
		Body:          in.MessageBody,
	})
	return &sqs.SendMessageOutput{}, nil
}

func (m *queueMock) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q := sdkaws.ToString(in.QueueUrl)
	n := int(in.MaxNumberOfMessages)
	if n > len(m.queues[q]) {
		n = len(m.queues[q])
	}
	msgs := append([]sqstypes.Message(nil), m.queues[q][:n]...)
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (m *queueMock) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q := sdkaws.ToString(in.QueueUrl)
	receipt := sdkaws.ToString(in.ReceiptHandle)
	for i, msg := range m.queues[q] {
		if sdkaws.ToString(msg.ReceiptHandle) == receipt {
			m.queues[q] = append(m.queues[q][:i], m.queues[q][i+1:]...)
			break
		}
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *queueMock) ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func TestRedrive_MovesEverything(t *testing.T) {
	mock := newQueueMock()
	ctx := context.Background()

	for i := 0; i < 13; i++ {
		_, err := mock.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    sdkaws.String("dlq"),
			MessageBody: sdkaws.String(fmt.Sprintf(`{"Records":[{"n":%d}]}`, i)),
		})
		require.NoError(t, err)
	}

	moved, err := redrive(ctx, mock, "dlq", "main")
	require.NoError(t, err)

	assert.Equal(t, 13, moved)
	assert.Empty(t, mock.queues["dlq"])
	assert.Len(t, mock.queues["main"], 13)
}

func TestRedrive_EmptyDLQ(t *testing.T) {
	mock := newQueueMock()

	moved, err := redrive(context.Background(), mock, "dlq", "main")
	require.NoError(t, err)
	assert.Zero(t, moved)
}
