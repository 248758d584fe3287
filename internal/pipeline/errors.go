package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/event"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/imaging"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage"
)

// Kind decides a failed message's fate: Transient failures are left for
// redelivery, Permanent ones are recorded and left for the broker's
// dead-letter redrive, Fatal ones prevent the worker from starting at all.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Pipeline stage names, used in failure messages and logs.
const (
	StageParse    = "parse"
	StageFetch    = "fetch"
	StageValidate = "validate"
	StageDecode   = "decode"
	StageCompress = "compress"
	StageWrite    = "write"
)

// Sentinel causes for permanent validation failures.
var (
	ErrSizeLimitExceeded = errors.New("image exceeds configured size limit")
)

// Failure is a classified pipeline error: which stage failed and whether
// retrying can help.
type Failure struct {
	Stage string
	Kind  Kind
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", f.Stage, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func transient(stage string, err error) error {
	return &Failure{Stage: stage, Kind: KindTransient, Err: err}
}

func permanent(stage string, err error) error {
	return &Failure{Stage: stage, Kind: KindPermanent, Err: err}
}

// Classify maps any error raised inside the pipeline to its Kind.
//
// Unknown errors classify as Transient: under at-least-once delivery a
// spurious retry is harmless (idempotent overwrite), while a wrongly
// suppressed one loses work.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}

	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransient
	case errors.Is(err, event.ErrMalformedEvent),
		errors.Is(err, imaging.ErrUnsupportedFormat),
		errors.Is(err, imaging.ErrDecode),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, ErrSizeLimitExceeded):
		return KindPermanent
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "RequestThrottled",
			"TooManyRequestsException", "SlowDown",
			"ServiceUnavailable", "InternalError", "RequestTimeout":
			return KindTransient
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return KindTransient
		}
	}

	return KindTransient
}
