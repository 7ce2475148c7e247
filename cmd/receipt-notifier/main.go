// Package main is the entrypoint for the Receipt Notifier Lambda function.
//
// The notifier is triggered by SQS. Each record body is one NotifiableUnit,
// either a fresh unit from the receipt pipeline or a unit re-enqueued by a
// previous pass (zstd+base64 encoded, flagged by the content-encoding
// attribute). Decoded units are handed to the receipt Reconciler as a
// single batch.
//
// Cold Start (main):
//  1. Load configuration (SSM secrets resolved outside local).
//  2. Initialize structured logger.
//  3. Open the PostgreSQL pool and build both stores.
//  4. Initialize SQS and CloudWatch clients.
//  5. Build tokenizer and App IO clients through the client registry.
//  6. Build the Reconciler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"receiptnotifier/internal/config"
	"receiptnotifier/internal/db"
	"receiptnotifier/internal/external"
	"receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/notifications/receipt"
	"receiptnotifier/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Reconciler is the part of receipt.Reconciler the handler uses.
type Reconciler interface {
	Reconcile(ctx context.Context, units []*types.NotifiableUnit) (*receipt.ReconcileResult, error)
}

// Handler holds the dependencies for the notifier Lambda handler.
type Handler struct {
	reconciler Reconciler
	metrics    core.NotificationMetrics
	logger     types.Logger
}

// Handle decodes the batch and reconciles it in one pass. Records that
// cannot be decoded are acknowledged and dropped. When the unit write-back
// fails every decoded record is reported as failed so SQS redelivers it;
// the message-record store makes the redelivery safe.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	units := make([]*types.NotifiableUnit, 0, len(sqsEvent.Records))
	accepted := make([]string, 0, len(sqsEvent.Records))
	for _, record := range sqsEvent.Records {
		unit, err := h.decodeRecord(ctx, record)
		if err != nil {
			h.logger.Error("dropping undecodable record",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			continue
		}
		units = append(units, unit)
		accepted = append(accepted, record.MessageId)
	}

	if len(units) == 0 {
		return response, nil
	}

	result, err := h.reconciler.Reconcile(ctx, units)
	if err != nil {
		h.logger.Error("batch write-back failed, requesting redelivery",
			"records", len(accepted),
			"error", err.Error(),
		)
		for _, id := range accepted {
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: id},
			)
		}
		return response, nil
	}

	h.logger.Info("batch processed",
		"records", len(sqsEvent.Records),
		"units", len(result.Units),
		"discarded", result.Discarded,
		"messages", len(result.Records),
	)
	return response, nil
}

// decodeRecord turns an SQS record into a unit. A unit coming back from the
// retry queue in IO_ERROR_TO_NOTIFY is promoted to IO_NOTIFIER_RETRY so the
// reconciler picks it up.
func (h *Handler) decodeRecord(ctx context.Context, record events.SQSMessage) (*types.NotifiableUnit, error) {
	if ts, ok := record.Attributes["SentTimestamp"]; ok {
		if sent, err := parseMillisTimestamp(ts); err == nil {
			h.metrics.RecordQueueLag(ctx, time.Since(sent))
		}
	}

	encoding := stringAttribute(record, types.AttrContentEncoding)
	unit, err := core.DecodeUnit(record.Body, encoding)
	if err != nil {
		return nil, err
	}

	_, requeued := record.MessageAttributes[types.AttrRetryCount]
	if requeued && unit.Status == types.StatusIOErrorToNotify {
		unit.Status = types.StatusIONotifierRetry
	}
	return unit, nil
}

func stringAttribute(record events.SQSMessage, name string) string {
	attr, ok := record.MessageAttributes[name]
	if !ok || attr.StringValue == nil {
		return ""
	}
	return *attr.StringValue
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newReconciler wires the Reconciler from configuration and clients.
func newReconciler(
	cfg *config.Config,
	clients *external.ClientRegistry,
	units receipt.UnitStore,
	messages receipt.MessageStore,
	requeuer receipt.Requeuer,
	metrics core.NotificationMetrics,
	logger types.Logger,
) (*receipt.Reconciler, error) {
	templates, err := receipt.NewMarkdownTemplates()
	if err != nil {
		return nil, err
	}

	n := cfg.Notifier
	tokenizerPolicy := core.TokenizerRetryPolicy
	tokenizerPolicy.MaxAttempts = n.TokenizerMaxAttempts
	tokenizerPolicy.BaseDelay = n.TokenizerBaseDelay
	tokenizerPolicy.MaxDelay = n.TokenizerMaxDelay

	return receipt.NewReconciler(receipt.Config{
		MaxRetry:         n.MaxRetry,
		Concurrency:      n.Concurrency,
		CallTimeout:      n.CallTimeout,
		WriteBackReserve: n.WriteBackReserve,
		TokenizerRetry:   tokenizerPolicy,
	}, receipt.Deps{
		Tokenizer: clients.Tokenizer,
		Provider:  clients.Messages,
		Templates: templates,
		Units:     units,
		Messages:  messages,
		Requeuer:  requeuer,
		Metrics:   metrics,
		Logger:    logger,
	}), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION")).WithEndpoint(os.Getenv("AWS_ENDPOINT_URL"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("receipt notifier initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)
	typedLogger := &slogAdapter{logger: logger}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var metrics core.NotificationMetrics = core.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = core.NewCloudWatchNotificationMetrics(cwClient, cfg.Observability.MetricNamespace, typedLogger)
	}

	n := cfg.Notifier
	requeueDelay := core.RequeueDelayPolicy
	requeueDelay.BaseDelay = n.RequeueBaseDelay
	requeueDelay.MaxDelay = n.RequeueMaxDelay
	publisher := core.NewRequeuePublisher(sqsClient, cfg.AWS.RetryQueue, requeueDelay, n.CompressThreshold, typedLogger)

	reconciler, err := newReconciler(cfg,
		external.NewClientRegistry(cfg, logger),
		db.NewUnitRepository(pool),
		db.NewMessageRepository(pool),
		publisher,
		metrics,
		typedLogger,
	)
	if err != nil {
		return fmt.Errorf("building reconciler: %w", err)
	}

	handler := &Handler{
		reconciler: reconciler,
		metrics:    metrics,
		logger:     typedLogger,
	}

	logger.Info("receipt notifier initialized",
		"retry_queue", cfg.AWS.RetryQueue,
		"max_retry", n.MaxRetry,
		"concurrency", n.Concurrency,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. The schema is applied first so a fresh database works.
	// Usage: APP_ENV=local go run ./cmd/receipt-notifier < event.json
	if cfg.Environment == "local" {
		return runLocal(ctx, handler, pool, logger)
	}

	lambda.Start(handler.Handle)
	return nil
}

func runLocal(ctx context.Context, handler *Handler, conn db.DBTX, logger *slog.Logger) error {
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	logger.Info("APP_ENV=local: reading SQS event from stdin")
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no input received on stdin")
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}

	response, err := handler.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}
	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
	}
	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
