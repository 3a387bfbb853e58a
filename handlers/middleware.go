package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// CommandNext is the rest of a command dispatch chain.
type CommandNext func(ctx context.Context, cmd cbus.Command) error

// CommandMiddleware wraps command handling. The first registered middleware runs outermost.
type CommandMiddleware func(next CommandNext) CommandNext

// WithCommandMiddleware appends mw to the middleware applied to every command.
func WithCommandMiddleware(mw ...CommandMiddleware) Option {
	return func(r *Registry) { r.cmdMW = append(r.cmdMW, mw...) }
}

// HandleCommandWith runs cmd through the registry middleware, then mws, then the bound handler.
func (r *Registry) HandleCommandWith(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	r.mu.RLock()
	f, ok := r.cmd[reflect.TypeOf(cmd)]
	chain := make([]CommandMiddleware, 0, len(r.cmdMW)+len(mws))
	chain = append(chain, r.cmdMW...)
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("handle command %T: %w", cmd, berr.ErrHandlerNotFound)
	}

	chain = append(chain, mws...)

	next := CommandNext(func(ctx context.Context, cmd cbus.Command) error { return f(ctx, cmd) })
	for i := len(chain) - 1; i >= 0; i-- {
		next = chain[i](next)
	}

	return next(ctx, cmd)
}

// Chain handles cmds in order and stops at the first error.
func (r *Registry) Chain(ctx context.Context, cmds ...cbus.Command) error {
	for i, cmd := range cmds {
		if err := r.HandleCommand(ctx, cmd); err != nil {
			return fmt.Errorf("chain step %d: %w", i, err)
		}
	}

	return nil
}

// BatchOptions observes a Batch run.
type BatchOptions struct {
	// OnProgress is called after every command with the number done so far.
	OnProgress func(done, total int)
	// OnError is called for each failing command.
	OnError func(index int, cmd cbus.Command, err error)
}

// BatchOption configures BatchOptions.
type BatchOption func(*BatchOptions)

func WithBatchProgress(fn func(done, total int)) BatchOption {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

func WithBatchOnError(fn func(index int, cmd cbus.Command, err error)) BatchOption {
	return func(o *BatchOptions) { o.OnError = fn }
}

// Batch handles every command in order, carrying on past failures. It stops early only when
// ctx ends. The result joins every failure.
func (r *Registry) Batch(ctx context.Context, cmds []cbus.Command, opts ...BatchOption) error {
	var o BatchOptions
	for _, opt := range opts {
		opt(&o)
	}

	var errs []error

	for i, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		if err := r.HandleCommand(ctx, cmd); err != nil {
			if o.OnError != nil {
				o.OnError(i, cmd, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, len(cmds))
		}
	}

	return errors.Join(errs...)
}
