package config

import (
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-endpoint-bus/adapters/inmemory"
	"github.com/next-trace/scg-endpoint-bus/adapters/kafka"
	"github.com/next-trace/scg-endpoint-bus/adapters/nats"
	"github.com/next-trace/scg-endpoint-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-endpoint-bus/adapters/redis"
	"github.com/next-trace/scg-endpoint-bus/codec"
	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
)

// BuildOptions supplies what the YAML document cannot describe.
type BuildOptions struct {
	Codec      *codec.Registry
	Logger     *slog.Logger
	Propagator cbus.HeaderPropagator
	// Broker backs every memory transport. A fresh one is created when nil.
	Broker *inmemory.Broker
}

// Built holds what Build produced. Close releases every transport that was opened.
type Built struct {
	Endpoints []cbus.Endpoint
	Client    cbus.Client
	Broker    *inmemory.Broker

	cleanups []func()
}

// Close runs the transport cleanups in reverse order.
func (b *Built) Close() {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}

	b.cleanups = nil
}

// Build connects every configured transport and wraps it in an endpoint, plus the client when
// one is configured. On error everything opened so far is released.
func (c Config) Build(opts BuildOptions) (*Built, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("config: build: codec required: %w", berr.ErrInvalidConfig)
	}

	if opts.Broker == nil {
		opts.Broker = inmemory.New()
	}

	out := &Built{Broker: opts.Broker}

	for _, ec := range c.Endpoints {
		t, err := out.open(ec, opts, []string{ec.Topics.Commands, ec.Topics.Requests})
		if err != nil {
			out.Close()
			return nil, err
		}

		ep, err := endpoint.New(t, ec.endpointOptions(opts))
		if err != nil {
			out.Close()
			return nil, err
		}

		out.Endpoints = append(out.Endpoints, ep)
	}

	if c.Client != nil {
		ec := *c.Client

		t, err := out.open(ec, opts, []string{ec.Topics.Events, ec.Topics.Responses})
		if err != nil {
			out.Close()
			return nil, err
		}

		cl, err := endpoint.NewClient(t, ec.endpointOptions(opts))
		if err != nil {
			out.Close()
			return nil, err
		}

		out.Client = cl
	}

	return out, nil
}

func (e EndpointConfig) endpointOptions(opts BuildOptions) endpoint.Options {
	return endpoint.Options{
		Name:       e.Name,
		Topics:     e.Topics,
		Codec:      opts.Codec,
		Propagator: opts.Propagator,
		Logger:     opts.Logger,
	}
}

// open creates the transport for e. consume lists the topics the transport will read,
// for brokers that need them up front.
func (b *Built) open(e EndpointConfig, opts BuildOptions, consume []string) (endpoint.Transport, error) {
	var (
		t       endpoint.Transport
		cleanup func()
		err     error
	)

	switch e.Transport {
	case TransportMemory:
		// shared broker: closing it is the caller's business
		return sharedBroker{opts.Broker}, nil
	case TransportNATS:
		t, cleanup, err = nats.NewWithNATS(nats.Config{
			URL:         e.URL,
			Name:        e.Name,
			Queue:       e.Queue,
			ConnTimeout: e.ConnTimeout,
		})
	case TransportRabbitMQ:
		t, cleanup, err = rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         e.URL,
			Exchange:    e.Exchange,
			Queue:       e.Queue,
			ConnTimeout: e.ConnTimeout,
		})
	case TransportKafka:
		var kt *kafka.Transport

		kt, cleanup, err = kafka.NewWithKgo(kafka.Config{
			Brokers:  e.Brokers,
			ClientID: e.Name,
			Group:    e.Group,
			Topics:   consume,
		})
		if kt != nil {
			kt.Logger = opts.Logger
			t = kt
		}
	case TransportRedis:
		t, cleanup, err = redis.NewWithRedis(redis.Config{
			Addr:        e.Addr,
			Username:    e.Username,
			Password:    e.Password,
			DB:          e.DB,
			TLS:         e.TLS,
			PingTimeout: e.ConnTimeout,
		})
	default:
		err = fmt.Errorf("unknown transport %q: %w", e.Transport, berr.ErrInvalidConfig)
	}

	if err != nil {
		return nil, fmt.Errorf("config: endpoint %s: %w", e.Name, err)
	}

	if cleanup != nil {
		b.cleanups = append(b.cleanups, cleanup)
	}

	return t, nil
}

// sharedBroker lets several endpoints use one in-memory broker without the first
// endpoint Close shutting it down for the others.
type sharedBroker struct{ *inmemory.Broker }

func (sharedBroker) Close() error { return nil }

