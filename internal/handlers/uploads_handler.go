package handlers

import (
	"net/http"
	"path"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/validation"
)

// HandlerConfig groups dependencies for the uploads handler.
type HandlerConfig struct {
	S3Client     *s3.Client
	SourceBucket string
	MaxSizeBytes int64
	PresignTTL   time.Duration
}

// RegisterUploadRoutes registers the pre-signed upload URL API. The
// endpoint is a thin collaborator of the pipeline: it only hands out a URL
// and a generated object key; the store's creation notification does the
// rest once the client PUTs the bytes.
func RegisterUploadRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	presigner := s3.NewPresignClient(cfg.S3Client)

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	r.POST("/uploads", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.UploadRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		// Same ceiling the worker enforces; rejecting here saves the
		// client an upload the pipeline would dead-letter anyway.
		if cfg.MaxSizeBytes > 0 && req.SizeBytes > cfg.MaxSizeBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "size_limit_exceeded",
				"max_bytes": cfg.MaxSizeBytes,
			})
			return
		}

		// Key layout: one uuid prefix per upload keeps names collision-free
		// while preserving the original filename for the destination key
		// derivation downstream.
		objectKey := uuid.NewString() + "/" + path.Base(req.Filename)

		presigned, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket:      sdkaws.String(cfg.SourceBucket),
			Key:         sdkaws.String(objectKey),
			ContentType: sdkaws.String(req.ContentType),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "presign_failed",
				"msg":   err.Error(),
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"upload_url":         presigned.URL,
			"method":             presigned.Method,
			"object_key":         objectKey,
			"expires_in_seconds": int(ttl / time.Second),
		})
	})
}
