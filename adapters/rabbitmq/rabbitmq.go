package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// DefaultExchange is the topic exchange used when none is configured.
const DefaultExchange = "servicebus"

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Delivery is one inbound AMQP message.
type Delivery struct {
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Consumer binds a queue to routingKey on exchange and delivers its messages until cancel is called.
type Consumer interface {
	Consume(exchange, routingKey string, fn func(Delivery)) (cancel func() error, err error)
}

// Transport implements endpoint.Transport over an AMQP topic exchange.
type Transport struct {
	Publisher Publisher
	Consumer  Consumer
	Exchange  string

	closer    func() error
	closeOnce sync.Once
	closeErr  error
}

var _ endpoint.Transport = (*Transport)(nil)

func New(p Publisher, c Consumer, exchange string) *Transport {
	if exchange == "" {
		exchange = DefaultExchange
	}

	return &Transport{Publisher: p, Consumer: c, Exchange: exchange}
}

func (t *Transport) Publish(ctx context.Context, routingKey string, body []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Publisher == nil {
		return fmt.Errorf("rabbitmq publish: %w", berr.ErrPublishFailed)
	}

	msg := PubMsg{
		Exchange:   t.Exchange,
		RoutingKey: routingKey,
		Body:       body,
		Headers:    maps.Clone(headers),
	}
	if err := t.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish %s: %w", routingKey, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (t *Transport) Subscribe(routingKey string, fn endpoint.FrameHandler) (stream.Subscription, error) {
	if t.Consumer == nil {
		return nil, fmt.Errorf("rabbitmq subscribe %s: %w", routingKey, berr.ErrSubscribeFailed)
	}

	cancel, err := t.Consumer.Consume(t.Exchange, routingKey, func(d Delivery) { fn(d.Body, d.Headers) })
	if err != nil {
		return nil, fmt.Errorf("rabbitmq subscribe %s: %w", routingKey, errors.Join(berr.ErrSubscribeFailed, err))
	}

	return stream.Once(cancel), nil
}

// Close runs the connection cleanup, if the transport owns one, exactly once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.closer != nil {
			t.closeErr = t.closer()
		}
	})

	return t.closeErr
}
