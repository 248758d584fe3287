package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
)

// Store encapsulates ledger operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long records stay before TTL reaping
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table for processed-object records.
// ttlWindow: retention window (e.g. 72*time.Hour).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Get retrieves a ledger record by dedupe key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, dedupeKey string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"dedupe_key": &types.AttributeValueMemberS{Value: dedupeKey},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// IsDone reports whether the dedupe key has a DONE record. Expired-but-not-
// yet-reaped records still count: the destination object they describe is
// durable either way.
func (s *Store) IsDone(ctx context.Context, dedupeKey string) (bool, error) {
	rec, err := s.Get(ctx, dedupeKey)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status == StatusDone, nil
}

// MarkDone records a completed compression. Overwrites any earlier FAILED
// record for the key: a retried attempt that succeeded supersedes it.
func (s *Store) MarkDone(ctx context.Context, dedupeKey, destinationKey string, originalSize, compressedSize int64) error {
	now := s.nowFunc()
	rec := Record{
		DedupeKey:      dedupeKey,
		Status:         StatusDone,
		DestinationKey: destinationKey,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item (mark done): %w", err)
	}
	return nil
}

// MarkFailed records a permanent failure. It never downgrades a DONE
// record: a concurrent unit may have already completed the same key.
func (s *Store) MarkFailed(ctx context.Context, dedupeKey, reason string) error {
	now := s.nowFunc()
	rec := Record{
		DedupeKey:     dedupeKey,
		Status:        StatusFailed,
		FailureReason: reason,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(dedupe_key) OR #s <> :done"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
		},
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			// Key already DONE; keep the success record.
			return nil
		}
		return fmt.Errorf("put item (mark failed): %w", err)
	}
	return nil
}

// Helper
func awsString(s string) *string { return &s }
