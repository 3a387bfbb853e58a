package handlers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cbus "github.com/next-trace/scg-endpoint-bus/contract/bus"
	berr "github.com/next-trace/scg-endpoint-bus/contract/errors"
	"github.com/next-trace/scg-endpoint-bus/handlers"
	"github.com/next-trace/scg-endpoint-bus/stream"
)

type shipOrder struct {
	cbus.CommandMarker
	ID string
}

type orderShipped struct {
	cbus.EventMarker
	ID string
}

type trackOrder struct {
	cbus.RequestMeta
	ID string
}

type tracking struct {
	cbus.ResponseMeta
	Status string
}

type source struct {
	commands *stream.Subject[cbus.Command]
	events   *stream.Subject[cbus.Event]
	requests *stream.Subject[cbus.Request]

	mu       sync.Mutex
	replies  []cbus.Response
	replyErr error
}

func newSource() *source {
	return &source{
		commands: stream.NewSubject[cbus.Command](),
		events:   stream.NewSubject[cbus.Event](),
		requests: stream.NewSubject[cbus.Request](),
	}
}

func (s *source) Commands() stream.Stream[cbus.Command] { return s.commands }
func (s *source) Events() stream.Stream[cbus.Event]     { return s.events }
func (s *source) Requests() stream.Stream[cbus.Request] { return s.requests }

func (s *source) Reply(_ context.Context, _ cbus.Request, resp cbus.Response) error {
	s.mu.Lock()
	s.replies = append(s.replies, resp)
	s.mu.Unlock()

	return s.replyErr
}

func TestBindCommand_RejectsDuplicate(t *testing.T) {
	r := handlers.New(nil)
	noop := func(context.Context, shipOrder) error { return nil }

	require.NoError(t, handlers.BindCommandFunc(r, noop))
	require.ErrorIs(t, handlers.BindCommandFunc(r, noop), berr.ErrHandlerExists)
}

func TestHandleCommand(t *testing.T) {
	r := handlers.New(nil)

	var got string
	require.NoError(t, handlers.BindCommandFunc(r, func(_ context.Context, c shipOrder) error {
		got = c.ID
		return nil
	}))

	require.NoError(t, r.HandleCommand(t.Context(), shipOrder{ID: "7"}))
	require.Equal(t, "7", got)

	type unknown struct{ cbus.CommandMarker }
	require.ErrorIs(t, r.HandleCommand(t.Context(), unknown{}), berr.ErrHandlerNotFound)
}

func TestHandleEvent_AllHandlersRunAndErrorsJoin(t *testing.T) {
	r := handlers.New(nil)
	boom := errors.New("boom")

	var calls int
	require.NoError(t, handlers.BindEventFunc(r, func(context.Context, orderShipped) error { calls++; return boom }))
	require.NoError(t, handlers.BindEventFunc(r, func(context.Context, orderShipped) error { calls++; return nil }))

	err := r.HandleEvent(t.Context(), orderShipped{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)

	type ignored struct{ cbus.EventMarker }
	require.NoError(t, r.HandleEvent(t.Context(), ignored{}))
}

func TestHandleRequest(t *testing.T) {
	r := handlers.New(nil)
	require.NoError(t, handlers.BindRequestFunc(r, func(_ context.Context, q *trackOrder) (*tracking, error) {
		return &tracking{Status: "shipped:" + q.ID}, nil
	}))

	resp, err := r.HandleRequest(t.Context(), &trackOrder{ID: "9"})
	require.NoError(t, err)
	require.Equal(t, "shipped:9", resp.(*tracking).Status)

	require.ErrorIs(t,
		handlers.BindRequestFunc(r, func(context.Context, *trackOrder) (*tracking, error) { return nil, nil }),
		berr.ErrHandlerExists)
}

func TestHandleRequest_NilResponse(t *testing.T) {
	r := handlers.New(nil)
	require.NoError(t, handlers.BindRequestFunc(r, func(context.Context, *trackOrder) (*tracking, error) {
		return nil, nil
	}))

	_, err := r.HandleRequest(t.Context(), &trackOrder{})
	require.ErrorIs(t, err, berr.ErrInvalidMessage)
}

func TestAttach_DispatchesAndReplies(t *testing.T) {
	src := newSource()

	var (
		mu       sync.Mutex
		shipped  []string
		failures []error
	)

	r := handlers.New(nil, handlers.WithErrorHook(func(_ context.Context, _ cbus.Message, err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}))

	require.NoError(t, handlers.BindCommandFunc(r, func(_ context.Context, c shipOrder) error {
		mu.Lock()
		shipped = append(shipped, c.ID)
		mu.Unlock()

		return nil
	}))
	require.NoError(t, handlers.BindRequestFunc(r, func(_ context.Context, q *trackOrder) (*tracking, error) {
		return &tracking{Status: q.ID}, nil
	}))

	sub, err := r.Attach(t.Context(), src)
	require.NoError(t, err)

	require.Equal(t, 1, src.commands.Len())
	require.Equal(t, 1, src.requests.Len())
	require.Equal(t, 0, src.events.Len(), "no event handlers bound")

	src.commands.Next(shipOrder{ID: "1"})
	src.requests.Next(&trackOrder{ID: "2"})

	type stray struct{ cbus.CommandMarker }
	src.commands.Next(stray{})

	require.Equal(t, []string{"1"}, shipped)
	require.Len(t, src.replies, 1)
	require.Equal(t, "2", src.replies[0].(*tracking).Status)
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], berr.ErrHandlerNotFound)

	require.NoError(t, sub.Close())
	require.Equal(t, 0, src.commands.Len())
	require.Equal(t, 0, src.requests.Len())
}

func TestAttach_ReplyFailureReported(t *testing.T) {
	src := newSource()
	src.replyErr = berr.ErrPublishFailed

	var got []error
	r := handlers.New(nil, handlers.WithErrorHook(func(_ context.Context, _ cbus.Message, err error) { got = append(got, err) }))
	require.NoError(t, handlers.BindRequestFunc(r, func(context.Context, *trackOrder) (*tracking, error) {
		return &tracking{}, nil
	}))

	sub, err := r.Attach(t.Context(), src)
	require.NoError(t, err)
	defer sub.Close()

	src.requests.Next(&trackOrder{})
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0], berr.ErrPublishFailed)
}

func TestAttach_ContextCancelDetaches(t *testing.T) {
	src := newSource()
	r := handlers.New(nil)
	require.NoError(t, handlers.BindEventFunc(r, func(context.Context, orderShipped) error { return nil }))

	ctx, cancel := context.WithCancel(t.Context())
	_, err := r.Attach(ctx, src)
	require.NoError(t, err)
	require.Equal(t, 1, src.events.Len())

	cancel()
	require.Eventually(t, func() bool { return src.events.Len() == 0 }, time.Second, time.Millisecond)
}

func TestAttach_SubscribeFailureReleasesEarlierRoles(t *testing.T) {
	src := newSource()
	require.NoError(t, src.requests.Close())

	r := handlers.New(nil)
	require.NoError(t, handlers.BindCommandFunc(r, func(context.Context, shipOrder) error { return nil }))
	require.NoError(t, handlers.BindRequestFunc(r, func(context.Context, *trackOrder) (*tracking, error) {
		return &tracking{}, nil
	}))

	_, err := r.Attach(t.Context(), src)
	require.ErrorIs(t, err, berr.ErrSubscribeFailed)
	require.ErrorIs(t, err, stream.ErrClosed)
	require.Equal(t, 0, src.commands.Len())
}

func TestAttach_RecoversHandlerPanics(t *testing.T) {
	src := newSource()

	var got []error
	r := handlers.New(nil, handlers.WithErrorHook(func(_ context.Context, _ cbus.Message, err error) { got = append(got, err) }))
	require.NoError(t, handlers.BindCommandFunc(r, func(context.Context, shipOrder) error { panic("boom") }))
	require.NoError(t, handlers.BindRequestFunc(r, func(context.Context, *trackOrder) (*tracking, error) {
		panic("boom")
	}))

	sub, err := r.Attach(t.Context(), src)
	require.NoError(t, err)
	defer sub.Close()

	require.NotPanics(t, func() {
		src.commands.Next(shipOrder{})
		src.requests.Next(&trackOrder{})
	})

	require.Len(t, got, 2)
	for _, err := range got {
		require.ErrorIs(t, err, berr.ErrHandlerPanic)
	}

	// still subscribed after a panic
	require.Equal(t, 1, src.commands.Len())
}
