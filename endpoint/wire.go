package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-endpoint-bus/codec"
	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// wire holds what Endpoint and Client share: a transport, a codec and header propagation.
type wire struct {
	name       string
	transport  Transport
	codec      *codec.Registry
	propagator cbus.HeaderPropagator
	logger     *slog.Logger
}

type sendArgs struct {
	topic   string
	msg     any
	headers map[string]string
	wrap    error
	label   string
}

func (w *wire) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if w.transport == nil {
		return fmt.Errorf("%s %s: %w", w.name, label, base)
	}

	return nil
}

func (w *wire) send(ctx context.Context, sa *sendArgs) error {
	if err := w.ready(ctx, sa.wrap, sa.label); err != nil {
		return err
	}

	body, hdrs, err := w.codec.Encode(sa.msg)
	if err != nil {
		return fmt.Errorf("%s %s: %w", w.name, sa.label, errors.Join(sa.wrap, err))
	}

	for k, v := range sa.headers {
		hdrs[k] = v
	}

	if w.propagator != nil {
		w.propagator.Inject(ctx, hdrs)
	}

	if err := w.transport.Publish(ctx, sa.topic, body, hdrs); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("%s %s %s: %w", w.name, sa.label, sa.topic, errors.Join(sa.wrap, err))
	}

	return nil
}

// inbound decodes frames from topic and forwards those playing T's role.
// Frames that fail to decode or carry another role are reported through the sink's Error.
func inbound[T any](w *wire, topic string, role cbus.Role) stream.Stream[T] {
	return stream.Func[T](func(sink stream.Sink[T]) (stream.Subscription, error) {
		sub, err := w.transport.Subscribe(topic, func(data []byte, headers map[string]string) {
			msg, err := w.codec.Decode(data, headers)
			if err != nil {
				w.logger.Debug("endpoint: dropping undecodable frame", "endpoint", w.name, "topic", topic, "err", err)
				sink.Error(fmt.Errorf("%s %s: %w", topic, role, err))

				return
			}

			v, ok := msg.(T)
			if !ok {
				sink.Error(fmt.Errorf("%s: %T is not a %s: %w", topic, msg, role, berr.ErrRoleMismatch))
				return
			}

			sink.Next(v)
		})
		if err != nil {
			return nil, fmt.Errorf("%s subscribe %s: %w", w.name, topic, errors.Join(berr.ErrSubscribeFailed, err))
		}

		return sub, nil
	})
}

func correlationHeaders(c cbus.Correlated) map[string]string {
	return map[string]string{
		HeaderRequestID:   c.RequestID(),
		HeaderRequesterID: c.RequesterID(),
	}
}
