// Package kafka provides an endpoint.Transport over Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/endpoint"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

const maxPollBackoff = 10 * time.Second

// Record is one Kafka record as seen by the transport.
type Record struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Reader is a minimal Kafka-like consumer interface.
type Reader interface {
	AddTopics(topics ...string)
	// Poll blocks until records are available or ctx is done.
	Poll(ctx context.Context) ([]Record, error)
}

// Transport implements endpoint.Transport using an injected Writer and Reader.
// Records are keyed by the request id header so a request and its response share a partition.
type Transport struct {
	Writer Writer
	Reader Reader
	Logger *slog.Logger
	// Closer releases the underlying client once polling has stopped.
	Closer func()

	release     sync.Once
	dispatching atomic.Bool

	mu       sync.Mutex
	handlers map[string]map[uint64]endpoint.FrameHandler
	nextID   uint64
	stop     context.CancelFunc
	done     chan struct{}
	closed   bool
}

var _ endpoint.Transport = (*Transport)(nil)

// New creates a new Kafka transport with the provided writer and reader. Either may be nil
// for a publish-only or consume-only transport.
func New(w Writer, r Reader) *Transport {
	return &Transport{Writer: w, Reader: r, handlers: make(map[string]map[uint64]endpoint.FrameHandler)}
}

func (t *Transport) Publish(ctx context.Context, topic string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Writer == nil {
		return fmt.Errorf("kafka publish: %w", berr.ErrPublishFailed)
	}

	var key []byte
	if id := headers[endpoint.HeaderRequestID]; id != "" {
		key = []byte(id)
	}

	if err := t.Writer.Write(ctx, topic, key, value, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka publish write: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe registers fn for topic and starts the poll loop on first use.
func (t *Transport) Subscribe(topic string, fn endpoint.FrameHandler) (stream.Subscription, error) {
	if t.Reader == nil {
		return nil, fmt.Errorf("kafka subscribe %s: %w", topic, berr.ErrSubscribeFailed)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("kafka subscribe %s: %w", topic, berr.ErrBusClosed)
	}

	if t.handlers[topic] == nil {
		t.handlers[topic] = make(map[uint64]endpoint.FrameHandler)
		t.Reader.AddTopics(topic)
	}

	t.nextID++
	id := t.nextID
	t.handlers[topic][id] = fn

	if t.stop == nil {
		ctx, cancel := context.WithCancel(context.Background())
		t.stop = cancel
		t.done = make(chan struct{})

		go t.poll(ctx, t.done)
	}

	return stream.Once(func() error {
		t.mu.Lock()
		delete(t.handlers[topic], id)
		t.mu.Unlock()

		return nil
	}), nil
}

// Close stops the poll loop and runs Closer. It normally waits for the loop to exit.
// Called from a frame handler, which runs on the poll goroutine, it returns at once and
// the loop runs Closer when the handler returns.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	stop, done := t.stop, t.done
	t.mu.Unlock()

	if stop == nil {
		t.closeClient()
		return nil
	}

	stop()

	if !t.dispatching.Load() {
		<-done
	}

	return nil
}

func (t *Transport) closeClient() {
	t.release.Do(func() {
		if t.Closer != nil {
			t.Closer()
		}
	})
}

func (t *Transport) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer t.closeClient()

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxPollBackoff

	for {
		records, err := t.Reader.Poll(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			t.logger().Warn("kafka: poll failed", "err", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffCfg.NextBackOff()):
			}

			continue
		}

		backoffCfg.Reset()

		t.dispatch(ctx, records)
	}
}

func (t *Transport) dispatch(ctx context.Context, records []Record) {
	t.dispatching.Store(true)
	defer t.dispatching.Store(false)

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}

		for _, fn := range t.handlersFor(rec.Topic) {
			fn(rec.Value, rec.Headers)
		}
	}
}

func (t *Transport) handlersFor(topic string) []endpoint.FrameHandler {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]endpoint.FrameHandler, 0, len(t.handlers[topic]))
	for _, fn := range t.handlers[topic] {
		out = append(out, fn)
	}

	return out
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}

	return t.Logger
}
