package inmemory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

// Frame is one message as it travelled through the broker.
type Frame struct {
	Topic   string
	Data    []byte
	Headers map[string]string
}

// Broker is a thread-safe in-process implementation of endpoint.Transport.
// Frames are delivered synchronously to the subscribers of their topic and
// recorded for tests and examples.
type Broker struct {
	mu         sync.Mutex
	topics     map[string]*stream.Subject[Frame]
	published  []Frame
	publishErr error
	closed     bool
}

// Ensure Broker implements the transport contract.
var _ endpoint.Transport = (*Broker)(nil)

// New creates a new in-memory broker.
func New() *Broker { return &Broker{topics: make(map[string]*stream.Subject[Frame])} }

func (b *Broker) Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("inmemory publish %s: %w", topic, stream.ErrClosed)
	}

	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()

		return err
	}

	f := Frame{Topic: topic, Data: append([]byte(nil), data...), Headers: maps.Clone(headers)}
	b.published = append(b.published, f)
	subj := b.topic(topic)
	b.mu.Unlock()

	subj.Next(f)

	return nil
}

// Inject delivers a raw frame to subscribers without recording it.
func (b *Broker) Inject(topic string, data []byte, headers map[string]string) {
	b.mu.Lock()
	subj := b.topic(topic)
	b.mu.Unlock()

	subj.Next(Frame{Topic: topic, Data: data, Headers: headers})
}

func (b *Broker) Subscribe(topic string, fn endpoint.FrameHandler) (stream.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("inmemory subscribe %s: %w", topic, berr.ErrSubscribeFailed)
	}

	subj := b.topic(topic)
	b.mu.Unlock()

	return subj.Subscribe(stream.Observer[Frame]{
		OnNext: func(f Frame) { fn(f.Data, f.Headers) },
	})
}

// FailPublishes makes every later Publish return err. A nil err restores normal behaviour.
func (b *Broker) FailPublishes(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

// Published returns a copy of the recorded frames, optionally limited to one topic.
func (b *Broker) Published(topic string) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Frame, 0, len(b.published))
	for _, f := range b.published {
		if topic == "" || f.Topic == topic {
			out = append(out, f)
		}
	}

	return out
}

// Subscribers reports the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	subj, ok := b.topics[topic]
	b.mu.Unlock()

	if !ok {
		return 0
	}

	return subj.Len()
}

// Close detaches every subscriber. It is idempotent so one broker can back
// both an endpoint and a client.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for _, subj := range b.topics {
		_ = subj.Close()
	}

	return nil
}

// topic must be called with mu held.
func (b *Broker) topic(name string) *stream.Subject[Frame] {
	subj, ok := b.topics[name]
	if !ok {
		subj = stream.NewSubject[Frame]()
		b.topics[name] = subj
	}

	return subj
}
