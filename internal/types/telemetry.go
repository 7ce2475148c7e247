package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricRecipientOutcome = "RecipientOutcome"
	MetricUnitStatus       = "UnitStatus"
	MetricBatchSize        = "BatchSize"
	MetricBatchLatency     = "BatchLatency"
	MetricQueueLag         = "NotificationQueueLag"
	MetricWriteFailure     = "WriteBackFailure"

	// Dimension Keys
	DimRole    = "Role"
	DimOutcome = "Outcome"
	DimStatus  = "Status"
	DimStore   = "Store"

	// Metric Namespace
	MetricNamespace = "ReceiptNotifier"
)
