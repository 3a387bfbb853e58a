package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// Concrete AMQP connection-backed client with auto-reconnect.

const (
	exchangeKind       = "topic"
	maxReconnectPeriod = 30 * time.Second
)

type Config struct {
	URL         string
	Exchange    string
	ConnTimeout time.Duration
	// Queue prefix for consumer queues. Empty means server-named exclusive queues,
	// so every subscriber receives every message.
	Queue string
}

type consumerSpec struct {
	exchange   string
	routingKey string
	fn         func(Delivery)
	tag        string
}

type reconnectingClient struct {
	cfg    Config
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan struct{}
	ready  chan struct{} // closed once the first channel is ready

	consumers map[string]*consumerSpec
	nextTag   int
}

func newReconnectingClient(cfg Config) *reconnectingClient {
	rc := &reconnectingClient{
		cfg:       cfg,
		closed:    make(chan struct{}),
		ready:     make(chan struct{}),
		consumers: make(map[string]*consumerSpec),
	}
	go rc.run()

	return rc
}

func (rc *reconnectingClient) channel(ctx context.Context) (*amqp.Channel, error) {
	rc.mu.RLock()
	ch := rc.ch
	rc.mu.RUnlock()

	if ch != nil {
		return ch, nil
	}

	select {
	case <-rc.ready:
	case <-rc.closed:
		return nil, fmt.Errorf("rabbitmq: client closed: %w", berr.ErrBusClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rc.mu.RLock()
	ch = rc.ch
	rc.mu.RUnlock()

	if ch == nil {
		return nil, fmt.Errorf("rabbitmq: not connected: %w", berr.ErrPublishFailed)
	}

	return ch, nil
}

func (rc *reconnectingClient) Publish(ctx context.Context, m PubMsg) error {
	ch, err := rc.channel(ctx)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			ContentType: "application/json",
			Body:        m.Body,
		},
	)
}

// Consume registers a consumer. It is started now if connected and restored after every reconnect.
func (rc *reconnectingClient) Consume(exchange, routingKey string, fn func(Delivery)) (func() error, error) {
	rc.mu.Lock()
	rc.nextTag++
	spec := &consumerSpec{
		exchange:   exchange,
		routingKey: routingKey,
		fn:         fn,
		tag:        fmt.Sprintf("servicebus-%s-%d", routingKey, rc.nextTag),
	}
	rc.consumers[spec.tag] = spec
	ch := rc.ch
	rc.mu.Unlock()

	if ch != nil {
		if err := rc.start(ch, spec); err != nil {
			rc.forget(spec.tag)
			return nil, err
		}
	}

	return func() error {
		rc.forget(spec.tag)

		rc.mu.RLock()
		ch := rc.ch
		rc.mu.RUnlock()

		if ch == nil {
			return nil
		}

		return ch.Cancel(spec.tag, false)
	}, nil
}

func (rc *reconnectingClient) forget(tag string) {
	rc.mu.Lock()
	delete(rc.consumers, tag)
	rc.mu.Unlock()
}

func (rc *reconnectingClient) start(ch *amqp.Channel, spec *consumerSpec) error {
	name, exclusive := "", true
	if rc.cfg.Queue != "" {
		name, exclusive = rc.cfg.Queue+"."+spec.routingKey, false
	}

	q, err := ch.QueueDeclare(name, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		return err
	}

	if err := ch.QueueBind(q.Name, spec.routingKey, spec.exchange, false, nil); err != nil {
		return err
	}

	deliveries, err := ch.Consume(q.Name, spec.tag, true, exclusive, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range deliveries {
			spec.fn(Delivery{RoutingKey: d.RoutingKey, Body: d.Body, Headers: fromTable(d.Headers)})
		}
	}()

	return nil
}

func (rc *reconnectingClient) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rc.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-endpoint-bus"},
		Dial:       amqp.DefaultDial(rc.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(rc.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (rc *reconnectingClient) run() {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectPeriod

	for {
		select {
		case <-rc.closed:
			return
		default:
		}

		conn, ch, err := rc.dial()
		if err != nil {
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				sleep = maxReconnectPeriod
			}

			t := time.NewTimer(sleep)
			select {
			case <-rc.closed:
				t.Stop()
				return
			case <-t.C:
			}

			continue
		}

		backoffCfg.Reset()

		rc.mu.Lock()
		rc.conn = conn
		rc.ch = ch
		specs := make([]*consumerSpec, 0, len(rc.consumers))
		for _, s := range rc.consumers {
			specs = append(specs, s)
		}
		select {
		case <-rc.ready:
		default:
			close(rc.ready)
		}
		rc.mu.Unlock()

		for _, s := range specs {
			_ = rc.start(ch, s) //nolint:errcheck // a broken channel triggers another reconnect
		}

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rc.closed:
			return
		case <-notify:
			rc.mu.Lock()
			rc.ch, rc.conn = nil, nil
			rc.mu.Unlock()

			_ = ch.Close()
			_ = conn.Close()
		}
	}
}

func (rc *reconnectingClient) close() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	select {
	case <-rc.closed:
		return nil
	default:
		close(rc.closed)
	}

	var err error

	if rc.ch != nil {
		_ = rc.ch.Close()
		rc.ch = nil
	}

	if rc.conn != nil {
		err = rc.conn.Close()
		rc.conn = nil
	}

	return err
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	h := amqp.Table{}
	for k, v := range headers {
		h[k] = v
	}

	return h
}

func fromTable(t amqp.Table) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}

	return out
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect, ensures the topic exchange, and returns a Transport and cleanup.
func NewWithAMQPConn(cfg Config) (*Transport, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("rabbitmq: url required: %w", berr.ErrInvalidConfig)
	}

	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	rc := newReconnectingClient(cfg)
	tr := New(rc, rc, cfg.Exchange)
	tr.closer = rc.close
	cleanup := func() { _ = tr.Close() }

	return tr, cleanup, nil
}
