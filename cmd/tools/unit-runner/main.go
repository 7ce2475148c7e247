// Package main implements unit-runner, a CLI that feeds notifiable units to
// the notifier outside the normal pipeline.
//
// By default it wraps the units in an SQS event on stdout, ready for the
// notifier's local mode:
//
//	go run ./cmd/tools/unit-runner --file units.json | APP_ENV=local go run ./cmd/receipt-notifier
//
// With --enqueue it publishes them to the notifier queue instead, which is
// how a unit is replayed against a deployed stack or LocalStack:
//
//	go run ./cmd/tools/unit-runner --file units.json --enqueue --queue-url=$SQS_NOTIFIER_RETRY
//
// The input is a JSON unit or an array of units, read from --file or stdin.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/types"
)

type options struct {
	file      string
	enqueue   bool
	queueURL  string
	region    string
	endpoint  string
	delay     time.Duration
	threshold int
	retry     bool
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.file, "file", "", "JSON file with a unit or an array of units (default: stdin)")
	flag.BoolVar(&opts.enqueue, "enqueue", false, "Publish to the queue instead of printing an SQS event")
	flag.StringVar(&opts.queueURL, "queue-url", os.Getenv("SQS_NOTIFIER_RETRY"), "Queue URL used with --enqueue")
	flag.StringVar(&opts.region, "region", envOr("AWS_REGION", "eu-south-1"), "AWS region")
	flag.StringVar(&opts.endpoint, "endpoint", os.Getenv("AWS_ENDPOINT_URL"), "AWS endpoint override, e.g. LocalStack")
	flag.DurationVar(&opts.delay, "delay", 0, "Delivery delay used with --enqueue (max 15m)")
	flag.IntVar(&opts.threshold, "compress-threshold", 64*1024, "Compress bodies larger than this many bytes; 0 always compresses")
	flag.BoolVar(&opts.retry, "as-retry", false, "Mark printed records as redeliveries from the retry queue")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("unit-runner failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	in := stdin
	if opts.file != "" {
		f, err := os.Open(opts.file)
		if err != nil {
			return fmt.Errorf("opening %s: %w", opts.file, err)
		}
		defer f.Close()
		in = f
	}

	units, err := readUnits(in)
	if err != nil {
		return err
	}
	logger.Info("units loaded", "count", len(units))

	if !opts.enqueue {
		event, err := buildEvent(units, opts.threshold, opts.retry, time.Now())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(event)
	}

	if opts.queueURL == "" {
		return fmt.Errorf("--queue-url (or SQS_NOTIFIER_RETRY) is required with --enqueue")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if opts.endpoint != "" {
			o.BaseEndpoint = aws.String(opts.endpoint)
		}
	})
	return enqueue(ctx, core.NewRequeuePublisher(client, opts.queueURL, core.RequeueDelayPolicy, opts.threshold, slogLogger{logger}), units, opts.delay)
}

// readUnits accepts a single object or an array and validates every unit.
func readUnits(r io.Reader) ([]*types.NotifiableUnit, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("no input")
	}

	var units []*types.NotifiableUnit
	if raw[0] == '[' {
		err = json.Unmarshal(raw, &units)
	} else {
		var u types.NotifiableUnit
		err = json.Unmarshal(raw, &u)
		units = append(units, &u)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing units: %w", err)
	}

	v := validator.New()
	for i, u := range units {
		if u == nil {
			return nil, fmt.Errorf("unit %d is null", i)
		}
		if err := v.Struct(u); err != nil {
			return nil, fmt.Errorf("unit %d (%s) is invalid: %w", i, u.ID, err)
		}
	}
	return units, nil
}

// buildEvent wraps units the way SQS delivers them to the notifier.
func buildEvent(units []*types.NotifiableUnit, threshold int, retry bool, now time.Time) (events.SQSEvent, error) {
	var event events.SQSEvent
	for _, u := range units {
		body, encoding, err := core.EncodeUnit(u, threshold)
		if err != nil {
			return event, err
		}
		attrs := map[string]events.SQSMessageAttribute{
			types.AttrUnitID: stringAttr(u.ID),
		}
		if encoding != "" {
			attrs[types.AttrContentEncoding] = stringAttr(encoding)
		}
		if retry {
			attrs[types.AttrRetryCount] = events.SQSMessageAttribute{
				DataType:    "Number",
				StringValue: aws.String(strconv.Itoa(u.RetryCount)),
			}
		}
		event.Records = append(event.Records, events.SQSMessage{
			MessageId:         uuid.NewString(),
			Body:              body,
			EventSource:       "aws:sqs",
			Attributes:        map[string]string{"SentTimestamp": strconv.FormatInt(now.UnixMilli(), 10)},
			MessageAttributes: attrs,
		})
	}
	return event, nil
}

// Publisher is the part of core.RequeuePublisher used here.
type Publisher interface {
	Publish(ctx context.Context, unit *types.NotifiableUnit, delay time.Duration) error
}

func enqueue(ctx context.Context, p Publisher, units []*types.NotifiableUnit, delay time.Duration) error {
	for _, u := range units {
		if err := p.Publish(ctx, u, delay); err != nil {
			return fmt.Errorf("publishing unit %s: %w", u.ID, err)
		}
	}
	return nil
}

func stringAttr(v string) events.SQSMessageAttribute {
	return events.SQSMessageAttribute{DataType: "String", StringValue: aws.String(v)}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) With(args ...any) types.Logger { return slogLogger{s.l.With(args...)} }
