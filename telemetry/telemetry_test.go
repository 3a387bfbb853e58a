package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/next-trace/scg-endpoint-bus/telemetry"
)

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(t.Context(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}

	return out
}

func sum(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()

	s, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}

	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := t.Context()
	m.FanOut(ctx, "publish", 2)
	m.Delivery(ctx, "publish", "a", true)
	m.Delivery(ctx, "publish", "b", false)
	m.StreamError(ctx, "a", "command")

	got := collect(t, reader)
	require.Equal(t, int64(2), sum(t, got["servicebus.deliveries"]))
	require.Equal(t, int64(1), sum(t, got["servicebus.delivery.failures"]))
	require.Equal(t, int64(1), sum(t, got["servicebus.stream.errors"]))
	require.Contains(t, got, "servicebus.fanout.size")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.Metrics

	m.FanOut(context.Background(), "publish", 1)
	m.Delivery(context.Background(), "publish", "a", true)
	m.StreamError(context.Background(), "a", "command")

	m, err := telemetry.NewMetrics(nil)
	require.NoError(t, err)
	require.NotNil(t, m)
}

var errMeter = errors.New("meter rejected instrument")

// brokenMeter fails to create counters.
type brokenMeter struct{ noop.Meter }

func (brokenMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return noop.Int64Counter{}, errMeter
}

func TestNewMetrics_InstrumentErrorsSurface(t *testing.T) {
	m, err := telemetry.NewMetrics(brokenMeter{})
	require.ErrorIs(t, err, errMeter)
	require.Nil(t, m)
}

func TestOTelPropagator_UsesGivenPropagator(t *testing.T) {
	p := telemetry.OTelPropagator{Propagator: propagation.Baggage{}}
	h := map[string]string{}

	// nothing in the context: the map stays empty and nothing panics
	p.Inject(t.Context(), h)
	require.Empty(t, h)

	telemetry.OTelPropagator{}.Inject(t.Context(), h)
}
