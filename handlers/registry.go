// Package handlers maps inbound bus messages to handler functions.
//
// Handlers are bound per concrete message type at registration time. Attach subscribes the
// registry to a bus and dispatches every inbound command, event and request; responses
// produced by request handlers go back through the bus Reply fan-out.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
)

// ErrorHook observes handler failures raised while dispatching inbound messages.
type ErrorHook func(ctx context.Context, msg cbus.Message, err error)

// Option configures a Registry.
type Option func(*Registry)

// WithErrorHook installs fn in addition to logging.
func WithErrorHook(fn ErrorHook) Option { return func(r *Registry) { r.onError = fn } }

// Registry is an explicit message-type to handler table.
//
// Registry is concurrency-safe and contains no global state.
type Registry struct {
	mu sync.RWMutex

	cmd map[reflect.Type]func(ctx context.Context, cmd any) error
	evt map[reflect.Type][]func(ctx context.Context, e any) error
	req map[reflect.Type]func(ctx context.Context, q any) (cbus.Response, error)

	cmdMW []CommandMiddleware

	logger  *slog.Logger
	onError ErrorHook
}

// New constructs an empty Registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		cmd:    make(map[reflect.Type]func(context.Context, any) error),
		evt:    make(map[reflect.Type][]func(context.Context, any) error),
		req:    make(map[reflect.Type]func(context.Context, any) (cbus.Response, error)),
		logger: logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// BindCommand registers a handler for command type C. Duplicate bindings are rejected.
func BindCommand[C cbus.Command](r *Registry, h cbus.CommandHandler[C]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeFor[C]()

	if _, exists := r.cmd[t]; exists {
		return fmt.Errorf("bind command %s: %w", t.String(), berr.ErrHandlerExists)
	}

	r.cmd[t] = func(ctx context.Context, v any) error {
		c, ok := v.(C)
		if !ok {
			return fmt.Errorf("handle command %T: %w", v, berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, c)
	}

	return nil
}

// BindEvent registers an event handler. Multiple handlers are allowed.
func BindEvent[E cbus.Event](r *Registry, h cbus.EventHandler[E]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeFor[E]()
	r.evt[t] = append(r.evt[t], func(ctx context.Context, v any) error {
		e, ok := v.(E)
		if !ok {
			return fmt.Errorf("handle event %T: %w", v, berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, e)
	})

	return nil
}

// BindRequest registers a handler for request type Q answered with R. Duplicate bindings are rejected.
func BindRequest[Q cbus.Request, R cbus.Response](r *Registry, h cbus.RequestHandler[Q, R]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeFor[Q]()

	if _, exists := r.req[t]; exists {
		return fmt.Errorf("bind request %s: %w", t.String(), berr.ErrHandlerExists)
	}

	r.req[t] = func(ctx context.Context, v any) (cbus.Response, error) {
		q, ok := v.(Q)
		if !ok {
			return nil, fmt.Errorf("handle request %T: %w", v, berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, q)
	}

	return nil
}

// CommandFunc adapts a function to cbus.CommandHandler.
type CommandFunc[C cbus.Command] func(ctx context.Context, c C) error

func (f CommandFunc[C]) Handle(ctx context.Context, c C) error { return f(ctx, c) }

// EventFunc adapts a function to cbus.EventHandler.
type EventFunc[E cbus.Event] func(ctx context.Context, e E) error

func (f EventFunc[E]) Handle(ctx context.Context, e E) error { return f(ctx, e) }

// RequestFunc adapts a function to cbus.RequestHandler.
type RequestFunc[Q cbus.Request, R cbus.Response] func(ctx context.Context, q Q) (R, error)

func (f RequestFunc[Q, R]) Handle(ctx context.Context, q Q) (R, error) { return f(ctx, q) }

// BindCommandFunc is BindCommand for a plain function.
func BindCommandFunc[C cbus.Command](r *Registry, fn func(ctx context.Context, c C) error) error {
	return BindCommand[C](r, CommandFunc[C](fn))
}

// BindEventFunc is BindEvent for a plain function.
func BindEventFunc[E cbus.Event](r *Registry, fn func(ctx context.Context, e E) error) error {
	return BindEvent[E](r, EventFunc[E](fn))
}

// BindRequestFunc is BindRequest for a plain function.
func BindRequestFunc[Q cbus.Request, R cbus.Response](r *Registry, fn func(ctx context.Context, q Q) (R, error)) error {
	return BindRequest[Q, R](r, RequestFunc[Q, R](fn))
}

// HandleCommand runs the handler bound to cmd's type through the registry's middleware.
func (r *Registry) HandleCommand(ctx context.Context, cmd cbus.Command) error {
	return r.HandleCommandWith(ctx, cmd)
}

// HandleEvent runs every handler bound to evt's type. An event nobody listens to is not an error.
// All handler errors are aggregated with errors.Join.
func (r *Registry) HandleEvent(ctx context.Context, evt cbus.Event) error {
	r.mu.RLock()
	entries := append([]func(context.Context, any) error(nil), r.evt[reflect.TypeOf(evt)]...)
	r.mu.RUnlock()

	var errs []error

	for _, call := range entries {
		if err := call(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// HandleRequest runs the handler bound to req's type and returns its response.
func (r *Registry) HandleRequest(ctx context.Context, req cbus.Request) (cbus.Response, error) {
	r.mu.RLock()
	f, ok := r.req[reflect.TypeOf(req)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("handle request %T: %w", req, berr.ErrHandlerNotFound)
	}

	resp, err := f(ctx, req)
	if err != nil {
		return nil, err
	}

	if isNil(resp) {
		return nil, fmt.Errorf("handle request %T: nil response: %w", req, berr.ErrInvalidMessage)
	}

	return resp, nil
}

func (r *Registry) hasCommands() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.cmd) > 0
}

func (r *Registry) hasEvents() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.evt) > 0
}

func (r *Registry) hasRequests() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.req) > 0
}

func (r *Registry) report(ctx context.Context, msg cbus.Message, err error) {
	r.logger.ErrorContext(ctx, "handlers: dispatch failed", "message", fmt.Sprintf("%T", msg), "err", err)

	if r.onError != nil {
		r.onError(ctx, msg, err)
	}
}

// isNil catches typed nil pointers returned through the Response interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)

	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
