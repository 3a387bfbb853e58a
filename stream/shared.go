package stream

import "sync"

// Shared multicasts a source to any number of sinks through a single upstream subscription.
//
// The upstream subscription is opened when the first sink attaches and closed when the last
// one detaches. A later attach opens a fresh subscription; values produced while no sink was
// attached are never replayed.
type Shared[T any] struct {
	source Stream[T]

	// mu serialises activation and deactivation.
	mu          sync.Mutex
	upstream    Subscription
	refs        int
	activations uint64
	closed      bool

	// sinksMu guards the sink set and the live generation; relays only take it for reading.
	sinksMu sync.RWMutex
	sinks   map[uint64]Sink[T]
	nextID  uint64
	gen     uint64
	live    uint64
}

// Share wraps source in a reference-counted multicast stream.
func Share[T any](source Stream[T]) *Shared[T] {
	return &Shared[T]{source: source, sinks: make(map[uint64]Sink[T])}
}

func (s *Shared[T]) Subscribe(sink Sink[T]) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	s.sinksMu.Lock()
	s.nextID++
	id := s.nextID
	s.sinks[id] = sink
	s.sinksMu.Unlock()

	if s.refs == 0 {
		if err := s.activate(); err != nil {
			s.detach(id)
			return nil, err
		}
	}

	s.refs++

	return Once(func() error { return s.release(id) }), nil
}

// Active reports whether the upstream subscription is open.
func (s *Shared[T]) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upstream != nil
}

// Subscribers reports the number of attached sinks.
func (s *Shared[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refs
}

// Activations reports how many times the upstream subscription has been opened.
func (s *Shared[T]) Activations() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.activations
}

// Close detaches every sink, releases the upstream subscription and rejects new sinks.
func (s *Shared[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.refs = 0

	s.sinksMu.Lock()
	clear(s.sinks)
	s.live = 0
	s.sinksMu.Unlock()

	return s.deactivate()
}

// activate must be called with mu held.
func (s *Shared[T]) activate() error {
	s.sinksMu.Lock()
	s.gen++
	gen := s.gen
	s.live = gen
	s.sinksMu.Unlock()

	sub, err := s.source.Subscribe(&relay[T]{s: s, gen: gen})
	if err != nil {
		s.sinksMu.Lock()
		s.live = 0
		s.sinksMu.Unlock()

		return err
	}

	s.upstream = sub
	s.activations++

	return nil
}

// deactivate must be called with mu held.
func (s *Shared[T]) deactivate() error {
	up := s.upstream
	s.upstream = nil

	if up == nil {
		return nil
	}

	return up.Close()
}

func (s *Shared[T]) release(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.detach(id)
	s.refs--

	if s.refs > 0 {
		return nil
	}

	s.sinksMu.Lock()
	s.live = 0
	s.sinksMu.Unlock()

	return s.deactivate()
}

func (s *Shared[T]) detach(id uint64) {
	s.sinksMu.Lock()
	delete(s.sinks, id)
	s.sinksMu.Unlock()
}

// snapshot returns the current sinks if gen is still the live generation.
func (s *Shared[T]) snapshot(gen uint64) []Sink[T] {
	s.sinksMu.RLock()
	defer s.sinksMu.RUnlock()

	if s.live != gen {
		return nil
	}

	out := make([]Sink[T], 0, len(s.sinks))
	for _, sink := range s.sinks {
		out = append(out, sink)
	}

	return out
}

// relay is the single sink attached upstream for one activation.
// Values arriving after that activation ended are dropped.
//
// Producers may call Next and Error concurrently (Merge forwards every source to the same
// relay). Delivery is serialised: whoever finds the relay idle drains the queue, everyone else
// only enqueues. Every sink therefore sees the same sequence, and a sink that re-enters the
// stream from inside Next does not deadlock.
type relay[T any] struct {
	s   *Shared[T]
	gen uint64

	mu       sync.Mutex
	queue    []signal[T]
	draining bool
}

type signal[T any] struct {
	v     T
	err   error
	isErr bool
}

func (r *relay[T]) Next(v T) { r.push(signal[T]{v: v}) }

func (r *relay[T]) Error(err error) { r.push(signal[T]{err: err, isErr: true}) }

func (r *relay[T]) push(sig signal[T]) {
	r.mu.Lock()
	r.queue = append(r.queue, sig)

	if r.draining {
		r.mu.Unlock()
		return
	}

	r.draining = true
	r.mu.Unlock()

	r.drain()
}

func (r *relay[T]) drain() {
	done := false

	defer func() {
		if !done {
			// a sink panicked; let the next producer take over
			r.mu.Lock()
			r.draining = false
			r.mu.Unlock()
		}
	}()

	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.draining = false
			r.mu.Unlock()

			done = true

			return
		}

		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, sig := range batch {
			r.deliver(sig)
		}
	}
}

func (r *relay[T]) deliver(sig signal[T]) {
	for _, sink := range r.s.snapshot(r.gen) {
		if sig.isErr {
			sink.Error(sig.err)
			continue
		}

		sink.Next(sig.v)
	}
}
