package servicebus

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

const (
	opPublish = "publish"
	opReply   = "reply"
)

// deliveryFunc performs one outbound operation against one endpoint.
type deliveryFunc func(ctx context.Context, ep cbus.Endpoint) error

// EndpointsThatCanHandle returns, in registration order, the endpoints whose CanHandle accepts msg.
// It is recomputed on every call.
func (b *Bus) EndpointsThatCanHandle(msg cbus.Message) []cbus.Endpoint {
	var out []cbus.Endpoint

	for _, ep := range b.endpoints {
		if ep.CanHandle(msg) {
			out = append(out, ep)
		}
	}

	return out
}

// Publish sends evt to every endpoint that can handle it. With no capable endpoint it is a no-op.
// Every selected endpoint is attempted; if any fails the result is a *errors.CompoundError
// matching errors.ErrPublishFailed.
func (b *Bus) Publish(ctx context.Context, evt cbus.Event) error {
	if evt == nil {
		return fmt.Errorf("publish: %w", berr.ErrInvalidMessage)
	}

	if b.closed.Load() {
		return fmt.Errorf("publish %T: %w", evt, berr.ErrBusClosed)
	}

	targets := b.EndpointsThatCanHandle(evt)
	if len(targets) == 0 {
		return nil
	}

	failures := b.fanOut(ctx, opPublish, targets, func(ctx context.Context, ep cbus.Endpoint) error {
		return ep.Publish(ctx, evt)
	})
	if len(failures) == 0 {
		return nil
	}

	err := &berr.CompoundError{
		Code:      berr.ErrPublishFailed,
		Op:        opPublish,
		Message:   evt,
		Attempted: names(targets),
		Failures:  failures,
	}
	b.logger.WarnContext(ctx, "servicebus: publish failed",
		"event", fmt.Sprintf("%T", evt), "failed", err.Endpoints(), "attempted", len(targets))

	return err
}

// Reply stamps resp with req's correlation ids and sends it to every endpoint that can
// handle resp. It fails with errors.ErrCorrelationNotConfigured, before touching any endpoint,
// when the bus has no correlation provider.
func (b *Bus) Reply(ctx context.Context, req cbus.Request, resp cbus.Response) error {
	if req == nil || resp == nil {
		return fmt.Errorf("reply: %w", berr.ErrInvalidMessage)
	}

	if b.correlation == nil {
		return fmt.Errorf("reply %T: %w", req, berr.ErrCorrelationNotConfigured)
	}

	if b.closed.Load() {
		return fmt.Errorf("reply %T: %w", req, berr.ErrBusClosed)
	}

	b.correlation.SetCorrelationIDs(req, resp)

	targets := b.EndpointsThatCanHandle(resp)
	if len(targets) == 0 {
		return nil
	}

	failures := b.fanOut(ctx, opReply, targets, func(ctx context.Context, ep cbus.Endpoint) error {
		return ep.Reply(ctx, req, resp)
	})
	if len(failures) == 0 {
		return nil
	}

	err := &berr.CompoundError{
		Code:      berr.ErrReplyFailed,
		Op:        opReply,
		Message:   req,
		Response:  resp,
		Attempted: names(targets),
		Failures:  failures,
	}
	b.logger.WarnContext(ctx, "servicebus: reply failed",
		"request", fmt.Sprintf("%T", req), "response", fmt.Sprintf("%T", resp),
		"request_id", req.RequestID(), "failed", err.Endpoints(), "attempted", len(targets))

	return err
}

// fanOut runs deliver against every target concurrently and waits for all of them.
// Each goroutine owns one slot of the result slice, so failures keep registration order.
func (b *Bus) fanOut(ctx context.Context, op string, targets []cbus.Endpoint, deliver deliveryFunc) []*berr.EndpointError {
	b.metrics.FanOut(ctx, op, len(targets))

	slots := make([]error, len(targets))

	p := pool.New()
	for i, ep := range targets {
		p.Go(func() { slots[i] = attempt(ctx, ep, deliver) })
	}

	p.Wait()

	var failures []*berr.EndpointError

	for i, err := range slots {
		b.metrics.Delivery(ctx, op, targets[i].Name(), err != nil)

		if err != nil {
			failures = append(failures, &berr.EndpointError{Endpoint: targets[i].Name(), Err: err})
		}
	}

	return failures
}

// attempt turns a panicking endpoint into an ordinary failure.
func attempt(ctx context.Context, ep cbus.Endpoint, deliver deliveryFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", berr.ErrEndpointPanic, r)
		}
	}()

	return deliver(ctx, ep)
}

func names(eps []cbus.Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.Name()
	}

	return out
}
