// Package nats provides an endpoint.Transport over NATS subjects.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// Subscribe delivers messages on subject. A non-empty queue joins a queue group.
	Subscribe(subject, queue string, fn func(data []byte, headers map[string]string)) (Unsubscriber, error)
	Close() error
}

// Unsubscriber is satisfied by *nats.Subscription.
type Unsubscriber interface {
	Unsubscribe() error
}

// Transport implements endpoint.Transport using an injected NATS-like Client.
type Transport struct {
	Client Client
	// Queue group for inbound subjects; empty means every subscriber gets every message.
	Queue string

	closeOnce sync.Once
	closeErr  error
}

var _ endpoint.Transport = (*Transport)(nil)

// New creates a NATS transport with the provided client.
func New(c Client, queue string) *Transport { return &Transport{Client: c, Queue: queue} }

func (t *Transport) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if err := t.ready(ctx, berr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	if err := t.Client.Publish(subject, data, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %s: %w", subject, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (t *Transport) Subscribe(subject string, fn endpoint.FrameHandler) (stream.Subscription, error) {
	if err := t.ready(context.Background(), berr.ErrSubscribeFailed, "subscribe"); err != nil {
		return nil, err
	}

	sub, err := t.Client.Subscribe(subject, t.Queue, fn)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, errors.Join(berr.ErrSubscribeFailed, err))
	}

	return stream.Once(sub.Unsubscribe), nil
}

// Close closes the client once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.Client != nil {
			t.closeErr = t.Client.Close()
		}
	})

	return t.closeErr
}

func (t *Transport) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Client == nil {
		return fmt.Errorf("nats %s: %w", label, base)
	}

	return nil
}
