package resolve

import (
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	requests         metric.Int64Counter
	lookups          metric.Int64Counter
	estimateFailures metric.Int64Counter
	duration         metric.Float64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	requests, _ := meter.Int64Counter("resolve_requests_total",
		metric.WithDescription("Total number of resolution requests"))
	lookups, _ := meter.Int64Counter("lookup_results_total",
		metric.WithDescription("Nutrition fact lookups by outcome"))
	estimateFailures, _ := meter.Int64Counter("estimates_failed_total",
		metric.WithDescription("Total number of items whose estimation failed"))
	duration, _ := meter.Float64Histogram("resolve_duration_seconds",
		metric.WithDescription("Duration of a resolution request in seconds"))

	return &metrics{
		requests:         requests,
		lookups:          lookups,
		estimateFailures: estimateFailures,
		duration:         duration,
	}
}
