package bus

import (
	"context"

	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Bus is the tech-agnostic surface of the service bus.
// It is intended for consumers that want to depend only on contracts.
type Bus interface {
	// Inbound, merged across endpoints.
	Commands() stream.Stream[Command]
	Requests() stream.Stream[Request]
	Events() stream.Stream[Event]
	Exceptions() stream.Stream[error]

	// Outbound, fanned out to every capable endpoint.
	Publish(ctx context.Context, evt Event) error
	Reply(ctx context.Context, req Request, resp Response) error

	// Client half.
	Send(ctx context.Context, cmd Command) error
	GetResponses(ctx context.Context, req Request) stream.Stream[Response]

	// Lifecycle
	Close() error
}
