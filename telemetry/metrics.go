// Package telemetry wires the bus into OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope used when no meter is supplied.
const ScopeName = "github.com/next-trace/scg-endpoint-bus"

// Metrics holds the bus instruments. A nil *Metrics records nothing.
type Metrics struct {
	fanoutSize       metric.Int64Histogram
	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
	streamErrors     metric.Int64Counter
}

// NewMetrics creates the bus instruments on meter, or on the global meter provider when meter is nil.
// It fails if any instrument cannot be created.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(ScopeName)
	}

	var (
		m    = &Metrics{}
		errs = make([]error, 4)
	)

	m.fanoutSize, errs[0] = meter.Int64Histogram("servicebus.fanout.size",
		metric.WithDescription("Number of endpoints selected per fan-out call"),
		metric.WithUnit("{endpoint}"))
	m.deliveries, errs[1] = meter.Int64Counter("servicebus.deliveries",
		metric.WithDescription("Endpoint delivery attempts"),
		metric.WithUnit("{delivery}"))
	m.deliveryFailures, errs[2] = meter.Int64Counter("servicebus.delivery.failures",
		metric.WithDescription("Endpoint delivery attempts that failed"),
		metric.WithUnit("{delivery}"))
	m.streamErrors, errs[3] = meter.Int64Counter("servicebus.stream.errors",
		metric.WithDescription("Inbound endpoint stream failures routed to the exceptions channel"),
		metric.WithUnit("{error}"))

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("telemetry: create instruments: %w", err)
	}

	return m, nil
}

// FanOut records the number of endpoints selected for op.
func (m *Metrics) FanOut(ctx context.Context, op string, size int) {
	if m == nil || m.fanoutSize == nil {
		return
	}

	m.fanoutSize.Record(ctx, int64(size), metric.WithAttributes(attribute.String("op", op)))
}

// Delivery records one endpoint attempt and whether it failed.
func (m *Metrics) Delivery(ctx context.Context, op, endpoint string, failed bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("endpoint", endpoint))

	if m.deliveries != nil {
		m.deliveries.Add(ctx, 1, attrs)
	}

	if failed && m.deliveryFailures != nil {
		m.deliveryFailures.Add(ctx, 1, attrs)
	}
}

// StreamError records an isolated inbound stream failure.
func (m *Metrics) StreamError(ctx context.Context, endpoint, role string) {
	if m == nil || m.streamErrors == nil {
		return
	}

	m.streamErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("role", role)))
}
