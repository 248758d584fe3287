package event

import (
	"mime"
	"path"
	"time"
)

// UploadEvent is the normalized form of a single object-create notification.
// One raw delivery may decompose into several of these; each is processed
// independently downstream.
type UploadEvent struct {
	SourceBucket string    `json:"source_bucket"`
	ObjectKey    string    `json:"object_key"`
	VersionTag   string    `json:"version_tag"` // etag or version id of the created object
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	Timestamp    time.Time `json:"timestamp"`
}

// DedupeKey identifies one logical upload version. Reprocessing under the
// same key must be safe (idempotent overwrite at the destination).
func (e UploadEvent) DedupeKey() string {
	return e.SourceBucket + "/" + e.ObjectKey + "/" + e.VersionTag
}

// guessContentType derives a content type from the object key extension.
// Store notifications carry no content type, so this is the declared type
// until the fetched object says otherwise.
func guessContentType(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return ""
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		// mime misses a few we care about on minimal systems
		switch ext {
		case ".jpg", ".jpeg":
			return "image/jpeg"
		case ".png":
			return "image/png"
		case ".webp":
			return "image/webp"
		}
	}
	return ct
}
