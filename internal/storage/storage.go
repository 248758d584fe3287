package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the requested object (or the
// requested version of it) does not exist anymore.
var ErrNotFound = errors.New("object not found")

// ObjectInfo carries the store-side metadata of a fetched object.
type ObjectInfo struct {
	ContentType string
	ETag        string
	Size        int64
}

// Store is the capability the pipeline needs from an object store: atomic
// per-key get/put. Implementations are injected into the worker at
// construction so tests can substitute fakes.
type Store interface {
	// Get fetches an object's bytes and metadata. A non-empty ifMatch pins
	// the fetch to a specific version tag (etag); a mismatch reports
	// ErrNotFound since the version the event described is gone.
	Get(ctx context.Context, bucket, key, ifMatch string) ([]byte, ObjectInfo, error)

	// Put writes an object atomically: readers never observe a partial
	// write. Overwrites of an existing key are allowed.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string, metadata map[string]string) error
}
