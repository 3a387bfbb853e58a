package servicebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/stream"
	"github.com/next-trace/scg-endpoint-bus/telemetry"
)

// Config lists the collaborators of a Bus. It is validated by New.
type Config struct {
	// Endpoints in registration order. Fixed for the lifetime of the bus.
	Endpoints []cbus.Endpoint
	// Correlation is required for Reply.
	Correlation cbus.CorrelationProvider
	// Client backs Events, Send and GetResponses. Optional.
	Client cbus.Client
	Logger *slog.Logger
	// Meter for bus instruments; the global meter provider is used when nil.
	Meter metric.Meter
}

func (c Config) validate() error {
	seen := make(map[string]struct{}, len(c.Endpoints))

	for i, ep := range c.Endpoints {
		if ep == nil {
			return fmt.Errorf("endpoint %d is nil: %w", i, berr.ErrInvalidConfig)
		}

		name := ep.Name()
		if name == "" {
			return fmt.Errorf("endpoint %d has no name: %w", i, berr.ErrInvalidConfig)
		}

		if _, dup := seen[name]; dup {
			return fmt.Errorf("endpoint %q registered twice: %w", name, berr.ErrInvalidConfig)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// Bus is the facade over a fixed set of endpoints.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	endpoints   []cbus.Endpoint
	correlation cbus.CorrelationProvider
	client      cbus.Client
	logger      *slog.Logger
	metrics     *telemetry.Metrics

	commands   *stream.Shared[cbus.Command]
	requests   *stream.Shared[cbus.Request]
	exceptions *stream.Subject[error]

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ cbus.Bus = (*Bus)(nil)

// New validates cfg and constructs a Bus. No endpoint is subscribed until a consumer
// attaches to Commands or Requests.
func New(cfg Config) (*Bus, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("servicebus: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := telemetry.NewMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("servicebus: %w", errors.Join(berr.ErrInvalidConfig, err))
	}

	b := &Bus{
		endpoints:   append([]cbus.Endpoint(nil), cfg.Endpoints...),
		correlation: cfg.Correlation,
		client:      cfg.Client,
		logger:      logger,
		metrics:     metrics,
		exceptions:  stream.NewSubject[error](),
	}

	b.commands = merged(b, cbus.RoleCommand, cbus.Endpoint.Commands)
	b.requests = merged(b, cbus.RoleRequest, cbus.Endpoint.Requests)

	return b, nil
}

// Endpoints returns the registered endpoints in registration order.
func (b *Bus) Endpoints() []cbus.Endpoint { return append([]cbus.Endpoint(nil), b.endpoints...) }

// Commands is the shared stream of commands received by any endpoint.
func (b *Bus) Commands() stream.Stream[cbus.Command] { return b.commands }

// Requests is the shared stream of requests received by any endpoint.
func (b *Bus) Requests() stream.Stream[cbus.Request] { return b.requests }

// Events is the event stream of the client counterpart. Without a client it never emits.
func (b *Bus) Events() stream.Stream[cbus.Event] {
	if b.client == nil {
		return stream.Empty[cbus.Event]()
	}

	return b.client.Events()
}

// Exceptions carries inbound endpoint stream failures as *errors.StreamError.
func (b *Bus) Exceptions() stream.Stream[error] { return b.exceptions }

// Send forwards cmd to the client counterpart.
func (b *Bus) Send(ctx context.Context, cmd cbus.Command) error {
	if b.closed.Load() {
		return fmt.Errorf("send %T: %w", cmd, berr.ErrBusClosed)
	}

	if b.client == nil {
		return fmt.Errorf("send %T: %w", cmd, berr.ErrClientNotConfigured)
	}

	return b.client.Send(ctx, cmd)
}

// GetResponses forwards req to the client counterpart. Without a client the returned
// stream fails on subscribe.
func (b *Bus) GetResponses(ctx context.Context, req cbus.Request) stream.Stream[cbus.Response] {
	if b.client == nil {
		return stream.Func[cbus.Response](func(stream.Sink[cbus.Response]) (stream.Subscription, error) {
			return nil, fmt.Errorf("get responses %T: %w", req, berr.ErrClientNotConfigured)
		})
	}

	return b.client.GetResponses(ctx, req)
}

// Close releases the merged streams, closes the client counterpart and then every
// endpoint in registration order. A failing endpoint does not stop the others.
// Only the first call does any work; later calls return the same result.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		var errs []error

		if err := b.commands.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release commands: %w", err))
		}

		if err := b.requests.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release requests: %w", err))
		}

		if b.client != nil {
			if err := closeSafely(b.client.Close); err != nil {
				errs = append(errs, fmt.Errorf("close client: %w", err))
			}
		}

		for _, ep := range b.endpoints {
			if err := closeSafely(ep.Close); err != nil {
				b.logger.Error("servicebus: endpoint close failed", "endpoint", ep.Name(), "err", err)
				errs = append(errs, fmt.Errorf("close endpoint %s: %w", ep.Name(), err))
			}
		}

		_ = b.exceptions.Close()

		if len(errs) > 0 {
			b.closeErr = fmt.Errorf("%w: %w", berr.ErrDisposeFailed, errors.Join(errs...))
		}
	})

	return b.closeErr
}

func closeSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", berr.ErrEndpointPanic, r)
		}
	}()

	return fn()
}
