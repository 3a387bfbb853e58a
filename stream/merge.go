package stream

import "errors"

// Merge subscribes to every source on each subscription and forwards all of their values.
// With no sources the result never emits. If a source fails to subscribe, the sources
// already subscribed are released and the error is returned.
func Merge[T any](sources ...Stream[T]) Stream[T] {
	return Func[T](func(sink Sink[T]) (Subscription, error) {
		subs := make([]Subscription, 0, len(sources))

		for _, src := range sources {
			sub, err := src.Subscribe(sink)
			if err != nil {
				_ = closeAll(subs)
				return nil, err
			}

			subs = append(subs, sub)
		}

		return Once(func() error { return closeAll(subs) }), nil
	})
}

// Isolate keeps failures of src away from the sink: errors raised while subscribing or
// pushed through the stream are handed to onError, values pass through untouched.
func Isolate[T any](src Stream[T], onError func(error)) Stream[T] {
	return Func[T](func(sink Sink[T]) (Subscription, error) {
		sub, err := src.Subscribe(Observer[T]{OnNext: sink.Next, OnError: onError})
		if err != nil {
			onError(err)
			return SubscriptionFunc(nil), nil
		}

		return sub, nil
	})
}

func closeAll(subs []Subscription) error {
	var errs []error

	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
