package servicebus_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

type placeOrder struct {
	cbus.CommandMarker
	ID string
}

type orderPlaced struct {
	cbus.EventMarker
	ID string
}

type getOrder struct {
	cbus.RequestMeta
	ID string
}

type orderView struct {
	cbus.ResponseMeta
	ID string
}

type cancelled struct {
	cbus.EventMarker
}

var errBroker = errors.New("broker down")

// fakeEndpoint records every call and exposes its inbound streams as subjects.
type fakeEndpoint struct {
	name string
	can  func(cbus.Message) bool

	commands *stream.Subject[cbus.Command]
	requests *stream.Subject[cbus.Request]

	commandSubscribes atomic.Int32
	requestSubscribes atomic.Int32
	subscribeErr      error

	publishErr error
	replyErr   error
	closeErr   error
	panics     bool
	onReply    func(req cbus.Request, resp cbus.Response)

	mu        sync.Mutex
	published []cbus.Event
	replies   []cbus.Response
	closes    int
	closeLog  *closeLog
}

type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *closeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.names...)
}

func newFake(name string, can func(cbus.Message) bool) *fakeEndpoint {
	if can == nil {
		can = func(cbus.Message) bool { return true }
	}

	return &fakeEndpoint{
		name:     name,
		can:      can,
		commands: stream.NewSubject[cbus.Command](),
		requests: stream.NewSubject[cbus.Request](),
	}
}

func handles[T any]() func(cbus.Message) bool {
	return func(m cbus.Message) bool {
		_, ok := m.(T)
		return ok
	}
}

func (f *fakeEndpoint) Name() string { return f.name }

func (f *fakeEndpoint) CanHandle(msg cbus.Message) bool { return f.can(msg) }

func (f *fakeEndpoint) Commands() stream.Stream[cbus.Command] {
	return stream.Func[cbus.Command](func(sink stream.Sink[cbus.Command]) (stream.Subscription, error) {
		f.commandSubscribes.Add(1)

		if f.subscribeErr != nil {
			return nil, f.subscribeErr
		}

		return f.commands.Subscribe(sink)
	})
}

func (f *fakeEndpoint) Requests() stream.Stream[cbus.Request] {
	return stream.Func[cbus.Request](func(sink stream.Sink[cbus.Request]) (stream.Subscription, error) {
		f.requestSubscribes.Add(1)
		return f.requests.Subscribe(sink)
	})
}

func (f *fakeEndpoint) Publish(_ context.Context, evt cbus.Event) error {
	if f.panics {
		panic("publish exploded")
	}

	f.mu.Lock()
	f.published = append(f.published, evt)
	f.mu.Unlock()

	return f.publishErr
}

func (f *fakeEndpoint) Reply(_ context.Context, req cbus.Request, resp cbus.Response) error {
	if f.onReply != nil {
		f.onReply(req, resp)
	}

	f.mu.Lock()
	f.replies = append(f.replies, resp)
	f.mu.Unlock()

	return f.replyErr
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()

	if f.closeLog != nil {
		f.closeLog.add(f.name)
	}

	if f.panics {
		panic("close exploded")
	}

	return f.closeErr
}

func (f *fakeEndpoint) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.published)
}

func (f *fakeEndpoint) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.replies)
}

func (f *fakeEndpoint) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closes
}

// fakeClient is a minimal client counterpart.
type fakeClient struct {
	events *stream.Subject[cbus.Event]

	mu     sync.Mutex
	sent   []cbus.Command
	asked  []cbus.Request
	closed int
}

func newFakeClient() *fakeClient { return &fakeClient{events: stream.NewSubject[cbus.Event]()} }

func (c *fakeClient) Events() stream.Stream[cbus.Event] { return c.events }

func (c *fakeClient) Send(_ context.Context, cmd cbus.Command) error {
	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	c.mu.Unlock()

	return nil
}

func (c *fakeClient) GetResponses(_ context.Context, req cbus.Request) stream.Stream[cbus.Response] {
	c.mu.Lock()
	c.asked = append(c.asked, req)
	c.mu.Unlock()

	return stream.Empty[cbus.Response]()
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()

	return nil
}

// collector is a concurrency-safe sink.
type collector[T any] struct {
	mu     sync.Mutex
	values []T
	errs   []error
}

func (c *collector[T]) Next(v T) {
	c.mu.Lock()
	c.values = append(c.values, v)
	c.mu.Unlock()
}

func (c *collector[T]) Error(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]T(nil), c.values...)
}
