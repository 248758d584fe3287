package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/CristianPetrescu21/S3-SQS-Lambda/internal/imaging"
)

// Config is the environment-provided configuration surface. A missing or
// invalid mandatory option is fatal: the worker refuses to start rather
// than consume messages it cannot correctly handle.
type Config struct {
	DestBucket          string `env:"DEST_BUCKET" env-required:"true"`
	MaxImageSizeBytes   int64  `env:"MAX_IMAGE_SIZE_BYTES" env-default:"10485760"`
	CompressionQuality  int    `env:"COMPRESSION_QUALITY" env-default:"75"`
	TargetFormat        string `env:"TARGET_FORMAT" env-default:""` // empty keeps the source format
	MaxDeliveryAttempts int    `env:"MAX_DELIVERY_ATTEMPTS" env-default:"5"`
	MaxWidth            int    `env:"MAX_WIDTH" env-default:"0"` // 0 disables downscaling

	// Optional collaborators.
	LedgerTable      string `env:"LEDGER_TABLE"`
	MetricsNamespace string `env:"METRICS_NAMESPACE"`

	// Poller / redrive settings. Unused under Lambda, where the event
	// source mapping owns receive and visibility.
	QueueURL          string        `env:"QUEUE_URL"`
	DLQURL            string        `env:"DLQ_URL"`
	WorkerCount       int           `env:"WORKER_COUNT" env-default:"4"`
	ProcessTimeout    time.Duration `env:"PROCESS_TIMEOUT" env-default:"60s"`
	MinRetryBackoff   time.Duration `env:"MIN_RETRY_BACKOFF" env-default:"5s"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" env-default:"120s"`

	// S3-compatible endpoint overrides (MinIO, localstack).
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3PathStyle bool   `env:"S3_PATH_STYLE" env-default:"false"`

	format imaging.Format
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option ranges and resolves the target format.
func (c *Config) Validate() error {
	if c.DestBucket == "" {
		return fmt.Errorf("DEST_BUCKET is required")
	}
	if c.CompressionQuality < 1 || c.CompressionQuality > 100 {
		return fmt.Errorf("COMPRESSION_QUALITY must be in 1..100, got %d", c.CompressionQuality)
	}
	if c.MaxImageSizeBytes < 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE_BYTES must not be negative, got %d", c.MaxImageSizeBytes)
	}
	if c.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("MAX_DELIVERY_ATTEMPTS must be at least 1, got %d", c.MaxDeliveryAttempts)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}

	f, err := imaging.ParseFormat(c.TargetFormat)
	if err != nil {
		return fmt.Errorf("TARGET_FORMAT: %w", err)
	}
	c.format = f
	return nil
}

// Format returns the parsed target format; empty means keep source format.
func (c *Config) Format() imaging.Format { return c.format }
