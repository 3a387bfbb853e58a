/*
Package stream provides push-based streams used for inbound bus traffic.

A Stream delivers values to a Sink until the returned Subscription is closed. Streams built
here never complete on their own; they stop when the subscriber detaches or the owner closes.
Merge forwards values from several producers as they arrive. Share serialises them, so
every sink of a shared stream observes one sequence, with per-producer order preserved.
*/
package stream

import (
	"errors"
	"sync"
)

// ErrClosed is returned when subscribing to a closed Subject or Shared stream.
var ErrClosed = errors.New("stream: closed")

// Sink receives values pushed by a Stream.
// Implementations must be safe for concurrent use when attached to merged streams.
type Sink[T any] interface {
	Next(v T)
	Error(err error)
}

// Subscription detaches a sink from its stream.
type Subscription interface {
	Close() error
}

// Stream is a push-based sequence of values.
type Stream[T any] interface {
	Subscribe(sink Sink[T]) (Subscription, error)
}

// Func adapts a plain function to a Stream.
type Func[T any] func(sink Sink[T]) (Subscription, error)

func (f Func[T]) Subscribe(sink Sink[T]) (Subscription, error) { return f(sink) }

// Observer is a Sink built from optional callbacks.
type Observer[T any] struct {
	OnNext  func(v T)
	OnError func(err error)
}

func (o Observer[T]) Next(v T) {
	if o.OnNext != nil {
		o.OnNext(v)
	}
}

func (o Observer[T]) Error(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}

// SubscriptionFunc adapts a function to a Subscription. A nil func is a no-op.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error {
	if f == nil {
		return nil
	}

	return f()
}

// Once wraps fn so only the first Close runs it.
func Once(fn func() error) Subscription {
	var once sync.Once

	return SubscriptionFunc(func() error {
		var err error

		once.Do(func() { err = fn() })

		return err
	})
}

// Empty returns a stream that never emits and never completes.
func Empty[T any]() Stream[T] {
	return Func[T](func(Sink[T]) (Subscription, error) { return SubscriptionFunc(nil), nil })
}

// Filter forwards only values accepted by keep.
func Filter[T any](src Stream[T], keep func(T) bool) Stream[T] {
	return Func[T](func(sink Sink[T]) (Subscription, error) {
		return src.Subscribe(Observer[T]{
			OnNext: func(v T) {
				if keep(v) {
					sink.Next(v)
				}
			},
			OnError: sink.Error,
		})
	})
}

// Map converts values of src with fn. A non-nil error from fn is sent to the sink's Error.
func Map[T, U any](src Stream[T], fn func(T) (U, error)) Stream[U] {
	return Func[U](func(sink Sink[U]) (Subscription, error) {
		return src.Subscribe(Observer[T]{
			OnNext: func(v T) {
				u, err := fn(v)
				if err != nil {
					sink.Error(err)
					return
				}

				sink.Next(u)
			},
			OnError: sink.Error,
		})
	})
}
