package validation

import (
	"fmt"
	"path"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/imaging"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// Reject uploads the pipeline cannot decode before they ever reach the
	// queue: the declared content type must be a supported image type and
	// must agree with the filename extension.
	v.RegisterStructValidation(uploadStructValidation, UploadRequest{})

	return v
}

func uploadStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UploadRequest)

	declared, ok := imaging.FormatFromContentType(req.ContentType)
	if !ok {
		sl.ReportError(req.ContentType, "content_type", "ContentType", "supported_image_type",
			fmt.Sprintf("content type %q is not a supported image type", req.ContentType))
		return
	}

	ext := strings.TrimPrefix(path.Ext(req.Filename), ".")
	if ext == "" {
		return // extension-less names are fine; the pipeline sniffs bytes anyway
	}
	fromExt, err := imaging.ParseFormat(ext)
	if err != nil || fromExt != declared {
		sl.ReportError(req.Filename, "filename", "Filename", "extension_matches_type",
			fmt.Sprintf("extension %q does not match content type %q", ext, req.ContentType))
	}
}
