package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"receiptnotifier/internal/types"
)

// ErrNoAcknowledgment is returned when SQS accepted the call but did not
// return a message id.
var ErrNoAcknowledgment = errors.New("queue returned no message id")

// maxDelaySeconds is the SQS DelaySeconds ceiling.
const maxDelaySeconds = 900

// SQSSender abstracts the SQS SendMessage operation.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RequeuePublisher puts units on the retry queue. The unit is published
// as-is: the caller has already bumped RetryCount and set the status.
type RequeuePublisher struct {
	client    SQSSender
	queueURL  string
	policy    RetryPolicy
	threshold int
	logger    types.Logger
}

// NewRequeuePublisher creates a publisher. Units whose encoded size exceeds
// compressThreshold bytes are compressed (0 compresses everything).
func NewRequeuePublisher(client SQSSender, queueURL string, policy RetryPolicy, compressThreshold int, logger types.Logger) *RequeuePublisher {
	return &RequeuePublisher{
		client:    client,
		queueURL:  queueURL,
		policy:    policy,
		threshold: compressThreshold,
		logger:    logger,
	}
}

// Requeue publishes the unit delayed by CalculateNextRetry on its retry
// counter.
func (p *RequeuePublisher) Requeue(ctx context.Context, unit *types.NotifiableUnit) error {
	return p.Publish(ctx, unit, CalculateNextRetry(p.policy, unit.RetryCount-1))
}

// Publish sends the unit with an explicit delay, clamped to the SQS limit.
func (p *RequeuePublisher) Publish(ctx context.Context, unit *types.NotifiableUnit, delay time.Duration) error {
	body, encoding, err := EncodeUnit(unit, p.threshold)
	if err != nil {
		return fmt.Errorf("requeue publisher: %w", err)
	}

	delaySec := int32(min(max(delay.Seconds(), 0), maxDelaySeconds))

	attrs := map[string]sqstypes.MessageAttributeValue{
		types.AttrUnitID: {
			DataType:    aws.String("String"),
			StringValue: aws.String(unit.ID),
		},
		types.AttrRetryCount: {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(unit.RetryCount)),
		},
	}
	if encoding != "" {
		attrs[types.AttrContentEncoding] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(encoding),
		}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(body),
		DelaySeconds:      delaySec,
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("requeue publisher: failed to send unit %s to %s: %w", unit.ID, p.queueURL, err)
	}
	if out == nil || aws.ToString(out.MessageId) == "" {
		return fmt.Errorf("requeue publisher: unit %s: %w", unit.ID, ErrNoAcknowledgment)
	}

	p.logger.Info("unit requeued",
		"unit_id", unit.ID,
		"retry_count", unit.RetryCount,
		"delay_seconds", delaySec,
		"sqs_message_id", aws.ToString(out.MessageId),
		"encoding", encoding,
	)
	return nil
}
