package validation

// UploadRequest is the payload for POST /uploads: a client announcing the
// file it wants a pre-signed upload URL for.
type UploadRequest struct {
	Filename    string `json:"filename" validate:"required"`              // original file name, extension included
	ContentType string `json:"content_type" validate:"required"`          // declared MIME type
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`       // declared size, checked against the pipeline limit
	Description string `json:"description,omitempty" validate:"max=512"` // optional free-form note
}
