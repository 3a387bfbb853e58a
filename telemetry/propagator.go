package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
)

// OTelPropagator injects OpenTelemetry context into outbound message headers.
type OTelPropagator struct {
	// Propagator defaults to the global text map propagator.
	Propagator propagation.TextMapPropagator
}

var _ cbus.HeaderPropagator = OTelPropagator{}

func (p OTelPropagator) Inject(ctx context.Context, headers map[string]string) {
	tp := p.Propagator
	if tp == nil {
		tp = otel.GetTextMapPropagator()
	}

	tp.Inject(ctx, propagation.MapCarrier(headers))
}
