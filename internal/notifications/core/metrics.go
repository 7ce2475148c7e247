package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"receiptnotifier/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ NotificationMetrics = (*CloudWatchNotificationMetrics)(nil)

// CloudWatchNotificationMetrics emits notifier metrics to CloudWatch:
//
//	RecipientOutcome  {Role, Outcome}  count
//	UnitStatus        {Status}         count
//	BatchSize                          count
//	BatchLatency                       ms
//	NotificationQueueLag               ms
//	WriteBackFailure  {Store}          count
//
// Failures to publish are logged and swallowed.
type CloudWatchNotificationMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchNotificationMetrics publishes under namespace, defaulting to
// types.MetricNamespace when empty.
func NewCloudWatchNotificationMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchNotificationMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchNotificationMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatchNotificationMetrics) RecordRecipientOutcome(ctx context.Context, role types.RecipientRole, result MetricResult) {
	m.put(ctx, types.MetricRecipientOutcome, 1, cwtypes.StandardUnitCount,
		dim(types.DimRole, string(role)),
		dim(types.DimOutcome, string(result)),
	)
}

func (m *CloudWatchNotificationMetrics) RecordUnitStatus(ctx context.Context, status types.UnitStatus) {
	m.put(ctx, types.MetricUnitStatus, 1, cwtypes.StandardUnitCount, dim(types.DimStatus, string(status)))
}

// RecordBatch emits size and latency in a single call.
func (m *CloudWatchNotificationMetrics) RecordBatch(ctx context.Context, size int, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricBatchSize),
				Value:      aws.Float64(float64(size)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(types.MetricBatchLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record batch metrics", "error", err.Error(), "size", size)
	}
}

// RecordQueueLag tracks the time between enqueue and processing start.
func (m *CloudWatchNotificationMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, types.MetricQueueLag, float64(lag.Milliseconds()), cwtypes.StandardUnitMilliseconds)
}

func (m *CloudWatchNotificationMetrics) RecordWriteFailure(ctx context.Context, store string) {
	m.put(ctx, types.MetricWriteFailure, 1, cwtypes.StandardUnitCount, dim(types.DimStore, store))
}

func (m *CloudWatchNotificationMetrics) put(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Dimensions: dims,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record metric", "error", err.Error(), "metric", name)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
