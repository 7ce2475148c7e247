// Package config defines the process configuration of the receipt notifier.
// Configuration is loaded once at process initialization (Lambda cold start)
// and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"receiptnotifier/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev uat prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"receipt-notifier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Notifier      NotifierConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	AppIO         AppIOConfig
	Tokenizer     TokenizerConfig
	Server        ServerConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env.
	Build BuildInfo
}

// NotifierConfig tunes the reconciliation engine.
type NotifierConfig struct {
	// MaxRetry is the retry ceiling: a unit whose counter exceeds it after a
	// failed attempt becomes UNABLE_TO_SEND.
	MaxRetry    int `envconfig:"NOTIFY_RECEIPT_MAX_RETRY" default:"5" validate:"gte=0"`
	Concurrency int `envconfig:"NOTIFIER_CONCURRENCY" default:"8" validate:"gte=1,lte=64"`

	CallTimeout      time.Duration `envconfig:"NOTIFIER_CALL_TIMEOUT" default:"5s" validate:"gt=0"`
	WriteBackReserve time.Duration `envconfig:"NOTIFIER_WRITE_BACK_RESERVE" default:"5s"`

	// Tokenizer rate-limit retry loop (in-process).
	TokenizerMaxAttempts int           `envconfig:"TOKENIZER_RETRY_MAX_ATTEMPTS" default:"3" validate:"gte=1"`
	TokenizerBaseDelay   time.Duration `envconfig:"TOKENIZER_RETRY_BASE_DELAY" default:"200ms"`
	TokenizerMaxDelay    time.Duration `envconfig:"TOKENIZER_RETRY_MAX_DELAY" default:"2s"`

	// Delay applied to re-enqueued units (exponential on RetryCount).
	RequeueBaseDelay time.Duration `envconfig:"REQUEUE_BASE_DELAY" default:"30s"`
	RequeueMaxDelay  time.Duration `envconfig:"REQUEUE_MAX_DELAY" default:"15m"`

	// CompressThreshold is the encoded size (bytes) above which requeued
	// units are zstd-compressed.
	CompressThreshold int `envconfig:"REQUEUE_COMPRESS_THRESHOLD" default:"0"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-south-1"`

	// RetryQueue receives units re-enqueued for a later attempt.
	RetryQueue string `envconfig:"SQS_NOTIFIER_RETRY" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AppIOConfig configures the push-notification provider client.
type AppIOConfig struct {
	BaseURL         string        `envconfig:"IO_API_BASE_URL" validate:"required,url"`
	SubscriptionKey SecretString  `envconfig:"IO_API_SUBSCRIPTION_KEY"`
	Timeout         time.Duration `envconfig:"IO_API_TIMEOUT" default:"10s"`
	UserAgent       string        `envconfig:"IO_API_USER_AGENT" default:"receipt-notifier/1.0"`
}

// TokenizerConfig configures the personal-data tokenizer client.
type TokenizerConfig struct {
	BaseURL   string        `envconfig:"TOKENIZER_BASE_URL" validate:"required,url"`
	APIKey    SecretString  `envconfig:"TOKENIZER_API_KEY"`
	Timeout   time.Duration `envconfig:"TOKENIZER_TIMEOUT" default:"5s"`
	RateLimit float64       `envconfig:"TOKENIZER_RATE_LIMIT" default:"50" validate:"gt=0"`
	Burst     int           `envconfig:"TOKENIZER_BURST" default:"10" validate:"gte=1"`
}

// ServerConfig holds settings for the operations API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// APIKeyHash is the bcrypt hash of the key operators send in X-Api-Key.
	APIKeyHash SecretString `envconfig:"OPS_API_KEY_HASH"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ReceiptNotifier"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
