package handlers

import (
	"context"
	"errors"
	"fmt"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Source is the part of the bus a Registry consumes.
type Source interface {
	Commands() stream.Stream[cbus.Command]
	Requests() stream.Stream[cbus.Request]
	Events() stream.Stream[cbus.Event]
	Reply(ctx context.Context, req cbus.Request, resp cbus.Response) error
}

// Attach subscribes the registry to src. Only the roles that have bound handlers are
// subscribed. The returned subscription detaches everything; cancelling ctx does the same.
// Handler failures are logged and passed to the error hook; they never stop the subscription.
func (r *Registry) Attach(ctx context.Context, src Source) (stream.Subscription, error) {
	var subs []stream.Subscription

	fail := func(role cbus.Role, err error) (stream.Subscription, error) {
		for _, s := range subs {
			_ = s.Close()
		}

		return nil, fmt.Errorf("attach %s handlers: %w", role, errors.Join(berr.ErrSubscribeFailed, err))
	}

	if r.hasCommands() {
		sub, err := src.Commands().Subscribe(stream.Observer[cbus.Command]{
			OnNext: func(cmd cbus.Command) {
				r.guard(ctx, cmd, func() error { return r.HandleCommand(ctx, cmd) })
			},
		})
		if err != nil {
			return fail(cbus.RoleCommand, err)
		}

		subs = append(subs, sub)
	}

	if r.hasEvents() {
		sub, err := src.Events().Subscribe(stream.Observer[cbus.Event]{
			OnNext: func(evt cbus.Event) {
				r.guard(ctx, evt, func() error { return r.HandleEvent(ctx, evt) })
			},
		})
		if err != nil {
			return fail(cbus.RoleEvent, err)
		}

		subs = append(subs, sub)
	}

	if r.hasRequests() {
		sub, err := src.Requests().Subscribe(stream.Observer[cbus.Request]{
			OnNext: func(req cbus.Request) {
				r.guard(ctx, req, func() error { return r.answer(ctx, src, req) })
			},
		})
		if err != nil {
			return fail(cbus.RoleRequest, err)
		}

		subs = append(subs, sub)
	}

	detach := stream.Once(func() error {
		var errs []error

		for _, s := range subs {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	})

	stop := context.AfterFunc(ctx, func() { _ = detach.Close() })

	return stream.SubscriptionFunc(func() error {
		stop()
		return detach.Close()
	}), nil
}

func (r *Registry) answer(ctx context.Context, src Source, req cbus.Request) error {
	resp, err := r.HandleRequest(ctx, req)
	if err != nil {
		return err
	}

	return src.Reply(ctx, req, resp)
}

// guard runs fn on the transport's delivery goroutine. Failures and panics are reported,
// never propagated.
func (r *Registry) guard(ctx context.Context, msg cbus.Message, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.report(ctx, msg, fmt.Errorf("%w: %v", berr.ErrHandlerPanic, p))
		}
	}()

	if err := fn(); err != nil {
		r.report(ctx, msg, err)
	}
}
