package ledger

import "time"

// Status values for ledger entries
const (
	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)

// Record is the shape persisted in the processed-objects DynamoDB table.
// One record per dedupe key (sourceBucket/objectKey/versionTag); the record
// is an audit trail plus a duplicate-delivery fast path, never the source
// of correctness (the idempotent destination overwrite is).
type Record struct {
	DedupeKey      string    `dynamodbav:"dedupe_key"` // PK
	Status         string    `dynamodbav:"status"`
	DestinationKey string    `dynamodbav:"destination_key,omitempty"`
	OriginalSize   int64     `dynamodbav:"original_size,omitempty"`
	CompressedSize int64     `dynamodbav:"compressed_size,omitempty"`
	FailureReason  string    `dynamodbav:"failure_reason,omitempty"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
