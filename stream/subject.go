package stream

import "sync"

// Subject is a hot broadcaster: every value passed to Next reaches the sinks
// attached at that moment. Values emitted with no sink attached are dropped.
type Subject[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	sinks  map[uint64]Sink[T]
	closed bool
}

// NewSubject creates an open Subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{sinks: make(map[uint64]Sink[T])}
}

func (s *Subject[T]) Subscribe(sink Sink[T]) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	s.nextID++
	id := s.nextID
	s.sinks[id] = sink

	return Once(func() error {
		s.mu.Lock()
		delete(s.sinks, id)
		s.mu.Unlock()

		return nil
	}), nil
}

// Next delivers v to the current sinks. Sinks run outside the lock so they may detach themselves.
func (s *Subject[T]) Next(v T) {
	for _, sink := range s.snapshot() {
		sink.Next(v)
	}
}

// Error delivers err to the current sinks. The subject stays open.
func (s *Subject[T]) Error(err error) {
	for _, sink := range s.snapshot() {
		sink.Error(err)
	}
}

// Len reports the number of attached sinks.
func (s *Subject[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sinks)
}

// Close detaches every sink and rejects further subscriptions. Safe to call more than once.
func (s *Subject[T]) Close() error {
	s.mu.Lock()
	s.closed = true
	clear(s.sinks)
	s.mu.Unlock()

	return nil
}

func (s *Subject[T]) snapshot() []Sink[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sink[T], 0, len(s.sinks))
	for _, sink := range s.sinks {
		out = append(out, sink)
	}

	return out
}
