package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryLatency"
	MetricJobClaimed      = "JobClaimed"
	MetricJobRequeued     = "JobRequeued"
	MetricJobFinalized    = "JobFinalized"
	MetricSweepAffected   = "SweepAffectedRows"

	// Dimension Keys
	DimChannel = "Channel"
	DimResult  = "Result"
	DimJobType = "JobType"
	DimRule    = "Rule"
	DimOrgID   = "OrgID"

	// Metric Namespace
	MetricNamespace = "Shiksha"
)
