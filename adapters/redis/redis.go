// Package redis provides an endpoint.Transport over Redis pub/sub channels.
//
// Redis pub/sub has no message headers, so every frame is wrapped in a small JSON
// envelope carrying the headers next to the payload.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Client is a minimal Redis pub/sub interface decoupled from any concrete library.
type Client interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers payloads published on channel until cancel is called.
	Subscribe(ctx context.Context, channel string, fn func(payload []byte)) (cancel func() error, err error)
	Close() error
}

type envelope struct {
	Headers map[string]string `json:"h,omitempty"`
	Data    []byte            `json:"d"`
}

// Transport implements endpoint.Transport using an injected Client.
type Transport struct {
	Client Client
	// OnDecodeError is called for payloads that are not valid envelopes. Optional.
	OnDecodeError func(channel string, err error)

	closeOnce sync.Once
	closeErr  error
}

var _ endpoint.Transport = (*Transport)(nil)

func New(c Client) *Transport { return &Transport{Client: c} }

func (t *Transport) Publish(ctx context.Context, channel string, data []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Client == nil {
		return fmt.Errorf("redis publish: %w", berr.ErrPublishFailed)
	}

	payload, err := json.Marshal(envelope{Headers: headers, Data: data})
	if err != nil {
		return fmt.Errorf("redis publish serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := t.Client.Publish(ctx, channel, payload); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("redis publish %s: %w", channel, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (t *Transport) Subscribe(channel string, fn endpoint.FrameHandler) (stream.Subscription, error) {
	if t.Client == nil {
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, berr.ErrSubscribeFailed)
	}

	cancel, err := t.Client.Subscribe(context.Background(), channel, func(payload []byte) {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			if t.OnDecodeError != nil {
				t.OnDecodeError(channel, errors.Join(berr.ErrSerializationFailed, err))
			}

			return
		}

		fn(env.Data, env.Headers)
	})
	if err != nil {
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, errors.Join(berr.ErrSubscribeFailed, err))
	}

	return stream.Once(cancel), nil
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.Client != nil {
			t.closeErr = t.Client.Close()
		}
	})

	return t.closeErr
}
