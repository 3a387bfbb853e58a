package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// Concrete NATS connection-backed Client and constructor.

type Config struct {
	URL           string
	Name          string
	Queue         string
	ConnTimeout   time.Duration
	MaxReconnects int
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: toHeader(headers)}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c natsClient) Subscribe(subject, queue string, fn func([]byte, map[string]string)) (Unsubscriber, error) {
	handler := func(m *nats.Msg) { fn(m.Data, fromHeader(m.Header)) }

	if queue != "" {
		return c.nc.QueueSubscribe(subject, queue, handler)
	}

	return c.nc.Subscribe(subject, handler)
}

func (c natsClient) Close() error {
	if c.nc == nil || c.nc.IsClosed() {
		return nil
	}

	err := c.nc.Drain()
	c.nc.Close()

	return err
}

func toHeader(headers map[string]string) nats.Header {
	if len(headers) == 0 {
		return nil
	}

	h := nats.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	return h
}

func fromHeader(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}

	return out
}

// NewWithNATS creates a real NATS connection and returns a Transport and a cleanup.
func NewWithNATS(cfg Config) (*Transport, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("nats: url required: %w", berr.ErrInvalidConfig)
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	tr := New(natsClient{nc: nc}, cfg.Queue)
	cleanup := func() { _ = tr.Close() } //nolint:errcheck // best-effort shutdown; cannot return error here

	return tr, cleanup, nil
}
