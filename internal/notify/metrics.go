package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"shiksha/internal/types"
)

// MetricResult labels the outcome dimension of a delivery attempt metric.
type MetricResult string

const (
	MetricResultSuccess MetricResult = "success"
	MetricResultFailure MetricResult = "failure"
)

// DispatchMetrics receives delivery telemetry from the Dispatcher.
type DispatchMetrics interface {
	RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult)
	RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ DispatchMetrics = (*CloudWatchDispatchMetrics)(nil)

// CloudWatchDispatchMetrics publishes two metrics per send: DeliveryAttempt
// (dimensions Channel, Result) and DeliveryLatency (dimension Channel).
// Publishing is best-effort; a PutMetricData failure is logged and never
// fails the delivery it describes.
type CloudWatchDispatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

func NewCloudWatchDispatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchDispatchMetrics {
	return &CloudWatchDispatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

func (m *CloudWatchDispatchMetrics) RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimChannel, string(channel)),
			dim(types.DimResult, string(result)),
		},
	}
	m.put(ctx, datum, "failed to record delivery metric",
		"channel", string(channel),
		"result", string(result),
	)
}

// RecordLatency reports the attempt duration in milliseconds.
func (m *CloudWatchDispatchMetrics) RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimChannel, string(channel)),
		},
	}
	m.put(ctx, datum, "failed to record latency metric",
		"channel", string(channel),
		"duration_ms", duration.Milliseconds(),
	)
}

func (m *CloudWatchDispatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum, failMsg string, logArgs ...any) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error(failMsg, append([]any{"error", err.Error()}, logArgs...)...)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// NopMetrics discards all telemetry. Used by the local sweep tool and tests.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.Channel, MetricResult) {}
func (NopMetrics) RecordLatency(context.Context, types.Channel, time.Duration) {}
