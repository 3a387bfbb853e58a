package servicebus

import (
	"context"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// merged builds the shared stream for one role: every endpoint's stream is isolated,
// merged, and shared behind a reference count.
func merged[T any](b *Bus, role cbus.Role, pick func(cbus.Endpoint) stream.Stream[T]) *stream.Shared[T] {
	sources := make([]stream.Stream[T], 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		sources = append(sources, stream.Isolate(pick(ep), b.streamFailure(ep.Name(), role)))
	}

	return stream.Share(stream.Merge(sources...))
}

func (b *Bus) streamFailure(endpoint string, role cbus.Role) func(error) {
	return func(err error) {
		serr := &berr.StreamError{Endpoint: endpoint, Role: string(role), Err: err}

		b.logger.Warn("servicebus: endpoint stream failed", "endpoint", endpoint, "role", role, "err", err)
		b.metrics.StreamError(context.Background(), endpoint, string(role))
		b.exceptions.Next(serr)
	}
}
