package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrMalformedEvent indicates a notification payload that cannot be resolved
// to at least a bucket/key pair. Callers treat it as a permanent failure.
var ErrMalformedEvent = errors.New("malformed store notification")

// rawNotification mirrors the S3 event notification envelope bit-for-bit.
// Only the fields the pipeline consumes are declared.
type rawNotification struct {
	Event   string `json:"Event"` // set on s3:TestEvent probes
	Records []struct {
		EventTime string `json:"eventTime"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key       string `json:"key"`
				ETag      string `json:"eTag"`
				VersionID string `json:"versionId"`
				Size      int64  `json:"size"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseNotification translates one raw store-creation notification into its
// normalized UploadEvents. Pure: no side effects, no network.
//
// A single envelope may carry multiple records; each becomes an independent
// UploadEvent so a downstream failure on one object never blocks the others.
// S3 test-event probes ("s3:TestEvent") parse to zero events.
func ParseNotification(body []byte) ([]UploadEvent, error) {
	var raw rawNotification
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if raw.Event == "s3:TestEvent" {
		return nil, nil
	}
	if len(raw.Records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrMalformedEvent)
	}

	events := make([]UploadEvent, 0, len(raw.Records))
	for i, rec := range raw.Records {
		if rec.S3.Bucket.Name == "" || rec.S3.Object.Key == "" {
			return nil, fmt.Errorf("%w: record %d missing bucket/key", ErrMalformedEvent, i)
		}

		key, err := decodeObjectKey(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d key %q: %v", ErrMalformedEvent, i, rec.S3.Object.Key, err)
		}

		version := rec.S3.Object.ETag
		if v := rec.S3.Object.VersionID; v != "" {
			version = v
		}

		ts := time.Time{}
		if rec.EventTime != "" {
			ts, err = time.Parse(time.RFC3339, rec.EventTime)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d eventTime %q", ErrMalformedEvent, i, rec.EventTime)
			}
		}

		events = append(events, UploadEvent{
			SourceBucket: rec.S3.Bucket.Name,
			ObjectKey:    key,
			VersionTag:   version,
			SizeBytes:    rec.S3.Object.Size,
			ContentType:  guessContentType(key),
			Timestamp:    ts,
		})
	}
	return events, nil
}

// decodeObjectKey undoes the url-encoding S3 applies to keys in
// notifications: spaces arrive as '+', the rest percent-encoded.
func decodeObjectKey(key string) (string, error) {
	return url.QueryUnescape(key)
}
