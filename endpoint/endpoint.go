package endpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-endpoint-bus/codec"
	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Options configures an Endpoint or a Client.
type Options struct {
	// Name identifies the endpoint in errors and logs. Required.
	Name string
	// Topics used on the transport. Required.
	Topics Topics
	// Codec lists the message types this endpoint carries. Required.
	Codec *codec.Registry
	// Propagator optionally injects tracing context into outbound headers.
	Propagator cbus.HeaderPropagator
	// Requester identifies a Client on requests it sends. Generated when empty.
	Requester string
	Logger    *slog.Logger
}

func (o Options) wire(t Transport) (*wire, error) {
	if o.Name == "" {
		return nil, fmt.Errorf("endpoint: name required: %w", berr.ErrInvalidConfig)
	}

	if t == nil {
		return nil, fmt.Errorf("endpoint %s: transport required: %w", o.Name, berr.ErrInvalidConfig)
	}

	if o.Codec == nil {
		return nil, fmt.Errorf("endpoint %s: codec required: %w", o.Name, berr.ErrInvalidConfig)
	}

	if err := o.Topics.Validate(); err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", o.Name, err)
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &wire{
		name:       o.Name,
		transport:  t,
		codec:      o.Codec,
		propagator: o.Propagator,
		logger:     logger,
	}, nil
}

// Endpoint is the service side of a transport: it receives commands and requests
// and sends events and responses.
type Endpoint struct {
	w      *wire
	topics Topics
}

var _ cbus.Endpoint = (*Endpoint)(nil)

// New creates an Endpoint over t.
func New(t Transport, opts Options) (*Endpoint, error) {
	w, err := opts.wire(t)
	if err != nil {
		return nil, err
	}

	return &Endpoint{w: w, topics: opts.Topics}, nil
}

func (e *Endpoint) Name() string { return e.w.name }

// CanHandle reports whether msg's type is registered in the endpoint's codec.
func (e *Endpoint) CanHandle(msg cbus.Message) bool { return e.w.codec.Knows(msg) }

func (e *Endpoint) Commands() stream.Stream[cbus.Command] {
	return inbound[cbus.Command](e.w, e.topics.Commands, cbus.RoleCommand)
}

func (e *Endpoint) Requests() stream.Stream[cbus.Request] {
	return inbound[cbus.Request](e.w, e.topics.Requests, cbus.RoleRequest)
}

func (e *Endpoint) Publish(ctx context.Context, evt cbus.Event) error {
	return e.w.send(ctx, &sendArgs{
		topic: e.topics.Events,
		msg:   evt,
		wrap:  berr.ErrPublishFailed,
		label: "publish",
	})
}

// Reply sends resp on the responses topic. Routing relies on the correlation ids already
// stamped on resp, so the request itself is not consulted.
func (e *Endpoint) Reply(ctx context.Context, _ cbus.Request, resp cbus.Response) error {
	return e.w.send(ctx, &sendArgs{
		topic:   e.topics.Responses,
		msg:     resp,
		headers: correlationHeaders(resp),
		wrap:    berr.ErrReplyFailed,
		label:   "reply",
	})
}

func (e *Endpoint) Close() error { return e.w.transport.Close() }
