package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/aws"
	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/handlers"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterUploadRoutes(r, cfg)

	return r
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	sourceBucket := os.Getenv("SOURCE_BUCKET")
	if sourceBucket == "" {
		log.Fatalf("SOURCE_BUCKET is required")
	}

	maxSize, _ := strconv.ParseInt(os.Getenv("MAX_IMAGE_SIZE_BYTES"), 10, 64)
	ttlSeconds, _ := strconv.Atoi(os.Getenv("PRESIGN_TTL_SECONDS"))

	cfg := handlers.HandlerConfig{
		S3Client:     clients.S3,
		SourceBucket: sourceBucket,
		MaxSizeBytes: maxSize,
		PresignTTL:   time.Duration(ttlSeconds) * time.Second,
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
