// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	deliveryCounter otelmetric.Int64Counter
	deliveryLatency otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	deliveryCounter, _ := meter.Int64Counter(
		"deliveries.processed",
		otelmetric.WithDescription("Number of delivery attempts processed"),
	)

	deliveryLatency, _ := meter.Float64Histogram(
		"deliveries.duration",
		otelmetric.WithDescription("Delivery attempt duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		deliveryCounter: deliveryCounter,
		deliveryLatency: deliveryLatency,
	}
}

// RecordDelivery records one delivery attempt with its outcome and duration.
func (o *Observability) RecordDelivery(ctx context.Context, channel, outcome string, duration time.Duration) {
	if o.deliveryCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	)
	o.deliveryCounter.Add(ctx, 1, attrs)
	o.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// Shutdown flushes the meter provider.
func (o *Observability) Shutdown() {
	if o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		log.Printf("Failed to shut down meter provider: %v", err)
	}
}
