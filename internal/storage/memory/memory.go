package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage"
)

type object struct {
	body        []byte
	contentType string
	etag        string
	metadata    map[string]string
}

// Store is an in-memory storage.Store used in tests and local runs.
// It mimics object-store semantics: atomic whole-object puts, etag per
// version, get-by-etag precondition.
type Store struct {
	mu      sync.Mutex
	objects map[string]object // bucket/key -> object

	getCalls int
	putErr   error // when set, Put fails with it (simulated outage)
}

var _ storage.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

func objectID(bucket, key string) string { return bucket + "/" + key }

func (s *Store) Get(ctx context.Context, bucket, key, ifMatch string) ([]byte, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getCalls++
	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil, storage.ObjectInfo{}, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, bucket, key)
	}
	if ifMatch != "" && obj.etag != ifMatch {
		return nil, storage.ObjectInfo{}, fmt.Errorf("%w: %s/%s@%s", storage.ErrNotFound, bucket, key, ifMatch)
	}

	body := make([]byte, len(obj.body))
	copy(body, obj.body)
	return body, storage.ObjectInfo{
		ContentType: obj.contentType,
		ETag:        obj.etag,
		Size:        int64(len(obj.body)),
	}, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		return s.putErr
	}

	stored := make([]byte, len(body))
	copy(stored, body)
	sum := md5.Sum(stored)
	s.objects[objectID(bucket, key)] = object{
		body:        stored,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		metadata:    metadata,
	}
	return nil
}

// --- test hooks ---

// FailPuts makes every subsequent Put return err; nil restores service.
func (s *Store) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// GetCalls reports how many Gets the store has served.
func (s *Store) GetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

// Object returns a stored object's bytes and content type, or false.
func (s *Store) Object(bucket, key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil, "", false
	}
	return obj.body, obj.contentType, true
}

// ETag returns the current etag of an object, or empty.
func (s *Store) ETag(bucket, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objectID(bucket, key)].etag
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Metadata returns the metadata stored with an object.
func (s *Store) Metadata(bucket, key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objectID(bucket, key)].metadata
}
