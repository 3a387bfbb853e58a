package bus

import (
	"context"

	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Client is the caller-side counterpart of the bus: it sends commands and requests
// and receives events and responses.
type Client interface {
	Events() stream.Stream[Event]
	Send(ctx context.Context, cmd Command) error
	// GetResponses sends req when the returned stream is subscribed and yields
	// the responses correlated with it.
	GetResponses(ctx context.Context, req Request) stream.Stream[Response]
	Close() error
}
