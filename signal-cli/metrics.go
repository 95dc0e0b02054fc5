package signalcli

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/rs/zerolog"
)

const Namespace = "table-poker-services"

// Metrics publishes CloudWatch metrics for a service. A nil *Metrics is valid
// and drops everything, which is what tests and console runs use.
type Metrics struct {
	service    Service
	cloudwatch cloudwatchiface.CloudWatchAPI
}

func NewMetrics(service Service, cloudwatch cloudwatchiface.CloudWatchAPI) *Metrics {
	return &Metrics{
		service,
		cloudwatch,
	}
}

type MetricName string

const (
	ResponseTimeMetric      MetricName = "ResponseTime"
	ConnectionOpenedMetric  MetricName = "ConnectionOpened"
	ConnectionClosedMetric  MetricName = "ConnectionClosed"
	ConnectionExpiredMetric MetricName = "ConnectionExpired"
	ConnectionsSweptMetric  MetricName = "ConnectionsSwept"
	MessageRoutedMetric     MetricName = "MessageRouted"
	JoinRejectedMetric      MetricName = "JoinRejected"
	RouteFailedMetric       MetricName = "RouteFailed"
	DeliveryFailedMetric    MetricName = "DeliveryFailed"
	DuplicateHostMetric     MetricName = "DuplicateHost"
)

type DimensionName string

const (
	ServiceNameDimension    DimensionName = "Service"
	ServiceVersionDimension DimensionName = "Version"
	OperationNameDimension  DimensionName = "OperationName"
	ReasonDimension         DimensionName = "Reason"
)

func defaultDimensions(service Service) map[DimensionName]string {
	return map[DimensionName]string{
		ServiceNameDimension:    service.Name,
		ServiceVersionDimension: service.Version,
	}
}

func mapToDimensions(ms ...map[DimensionName]string) []*cloudwatch.Dimension {
	var dimensions []*cloudwatch.Dimension
	for _, ds := range ms {
		for k, v := range ds {
			if v == "" {
				continue
			}
			dimensions = append(dimensions, &cloudwatch.Dimension{
				Name:  aws.String(string(k)),
				Value: aws.String(v),
			})
		}
	}
	return dimensions
}

func (m *Metrics) put(ctx context.Context, name MetricName, unit string, value float64, dimensions []map[DimensionName]string) {
	if m == nil || m.cloudwatch == nil {
		return
	}
	awsDimensions := mapToDimensions(append(dimensions, defaultDimensions(m.service))...)
	_, err := m.cloudwatch.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(Namespace),
		MetricData: []*cloudwatch.MetricDatum{
			{
				MetricName: aws.String(string(name)),
				Timestamp:  aws.Time(time.Now()),
				Unit:       aws.String(unit),
				Value:      aws.Float64(value),
				Dimensions: awsDimensions,
			},
		},
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("metric", string(name)).Msg("couldn't publish metric")
	}
}

func (m *Metrics) Event(ctx context.Context, name MetricName, dimensions ...map[DimensionName]string) {
	m.put(ctx, name, cloudwatch.StandardUnitCount, 1, dimensions)
}

func (m *Metrics) Count(ctx context.Context, name MetricName, n int, dimensions ...map[DimensionName]string) {
	m.put(ctx, name, cloudwatch.StandardUnitCount, float64(n), dimensions)
}

func (m *Metrics) Timing(ctx context.Context, name MetricName, start time.Time, dimensions ...map[DimensionName]string) {
	m.put(ctx, name, cloudwatch.StandardUnitMilliseconds, float64(time.Since(start).Milliseconds()), dimensions)
}

func (m *Metrics) Gauge(ctx context.Context, name MetricName, value float64, dimensions ...map[DimensionName]string) {
	m.put(ctx, name, cloudwatch.StandardUnitNone, value, dimensions)
}

// CloudWatchMetrics publishes through CloudWatch in Lambda mode. Console runs
// get nil, which drops every metric.
func CloudWatchMetrics(service Service, sess *session.Session) *Metrics {
	if CommonOpts.Console {
		return nil
	}
	return NewMetrics(service, cloudwatch.New(sess))
}
