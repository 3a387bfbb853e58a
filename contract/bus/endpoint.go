package bus

import (
	"context"

	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Endpoint is a pluggable transport able to receive commands and requests and to send
// events and responses. The bus depends only on this interface.
//
// Publish and Reply block until the transport has accepted the message or failed.
// Implementations must be safe for concurrent use.
type Endpoint interface {
	// Name identifies the endpoint in errors and logs.
	Name() string
	// CanHandle reports whether this endpoint can carry msg. It must be pure.
	CanHandle(msg Message) bool

	Commands() stream.Stream[Command]
	Requests() stream.Stream[Request]

	Publish(ctx context.Context, evt Event) error
	Reply(ctx context.Context, req Request, resp Response) error

	Close() error
}
