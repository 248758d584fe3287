package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/storage"
)

// Config options for the S3 store.
type Config struct {
	Region          string
	AccessKeyID     string // optional; default credential chain when empty
	SecretAccessKey string
	Endpoint        string // optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // path-style addressing (MinIO, localstack)
}

// S3Store implements storage.Store on top of the AWS S3 client.
type S3Store struct {
	client   *awss3.Client
	uploader *manager.Uploader
}

var _ storage.Store = (*S3Store)(nil)

// New creates an S3-backed store.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// NewFromClient wraps an existing client, for callers that already hold one.
func NewFromClient(client *awss3.Client) *S3Store {
	return &S3Store{client: client, uploader: manager.NewUploader(client)}
}

// Client exposes the underlying S3 client (presign needs it).
func (s *S3Store) Client() *awss3.Client { return s.client }

// Get implements storage.Store. A vanished object or an etag mismatch maps
// to storage.ErrNotFound; everything else surfaces as-is for the caller to
// classify.
func (s *S3Store) Get(ctx context.Context, bucket, key, ifMatch string) ([]byte, storage.ObjectInfo, error) {
	input := &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if ifMatch != "" {
		input.IfMatch = aws.String(ifMatch)
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ObjectInfo{}, fmt.Errorf("%w: s3://%s/%s", storage.ErrNotFound, bucket, key)
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}

	info := storage.ObjectInfo{Size: int64(len(body))}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	return body, info, nil
}

// Put implements storage.Store. S3 puts are atomic per key, which is what
// makes the redelivery overwrite safe.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string, metadata map[string]string) error {
	input := &awss3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: metadata,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		case "PreconditionFailed": // if-match etag no longer current
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code == http.StatusNotFound || code == http.StatusPreconditionFailed
	}
	return false
}
