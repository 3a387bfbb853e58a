package stream_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-endpoint-bus/stream"
)

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

func (c *collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]T(nil), c.values...)
}

func TestSubject_BroadcastsToCurrentSinks(t *testing.T) {
	s := stream.NewSubject[int]()
	a, b := &collector[int]{}, &collector[int]{}

	subA, err := s.Subscribe(a)
	require.NoError(t, err)

	s.Next(1)

	subB, err := s.Subscribe(b)
	require.NoError(t, err)

	s.Next(2)
	require.NoError(t, subA.Close())
	s.Next(3)

	require.Equal(t, []int{1, 2}, a.Values())
	require.Equal(t, []int{2, 3}, b.Values())
	require.Equal(t, 1, s.Len())

	require.NoError(t, subB.Close())
	require.NoError(t, subB.Close())
	require.Equal(t, 0, s.Len())

	require.NoError(t, s.Close())
	_, err = s.Subscribe(a)
	require.ErrorIs(t, err, stream.ErrClosed)
}

func TestMerge_ForwardsAllSources(t *testing.T) {
	s1, s2 := stream.NewSubject[string](), stream.NewSubject[string]()
	c := &collector[string]{}

	sub, err := stream.Merge[string](s1, s2).Subscribe(c)
	require.NoError(t, err)
	require.Equal(t, 1, s1.Len())
	require.Equal(t, 1, s2.Len())

	s1.Next("a")
	s2.Next("b")
	s1.Next("c")
	require.Equal(t, []string{"a", "b", "c"}, c.Values())

	require.NoError(t, sub.Close())
	require.Equal(t, 0, s1.Len())
	require.Equal(t, 0, s2.Len())
}

func TestMerge_ReleasesOnSubscribeFailure(t *testing.T) {
	ok := stream.NewSubject[int]()
	boom := errors.New("boom")
	failing := stream.Func[int](func(stream.Sink[int]) (stream.Subscription, error) { return nil, boom })

	_, err := stream.Merge[int](ok, failing).Subscribe(&collector[int]{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, ok.Len())
}

func TestMerge_NoSourcesNeverEmits(t *testing.T) {
	c := &collector[int]{}

	sub, err := stream.Merge[int]().Subscribe(c)
	require.NoError(t, err)
	require.Empty(t, c.Values())
	require.NoError(t, sub.Close())
}

func TestIsolate_RoutesErrorsAside(t *testing.T) {
	src := stream.NewSubject[int]()

	var isolated []error

	c := &collector[int]{}
	sub, err := stream.Isolate[int](src, func(err error) { isolated = append(isolated, err) }).Subscribe(c)
	require.NoError(t, err)

	src.Next(1)
	src.Error(errors.New("bad frame"))
	src.Next(2)

	require.Equal(t, []int{1, 2}, c.Values())
	require.Empty(t, c.errs)
	require.Len(t, isolated, 1)
	require.NoError(t, sub.Close())

	boom := errors.New("dial")
	failing := stream.Func[int](func(stream.Sink[int]) (stream.Subscription, error) { return nil, boom })

	sub, err = stream.Isolate[int](failing, func(err error) { isolated = append(isolated, err) }).Subscribe(c)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.ErrorIs(t, isolated[1], boom)
}

func TestShare_ActivatesOnDemand(t *testing.T) {
	src := stream.NewSubject[int]()
	shared := stream.Share[int](src)

	require.False(t, shared.Active())
	require.Equal(t, 0, src.Len())

	a := &collector[int]{}
	subA, err := shared.Subscribe(a)
	require.NoError(t, err)
	require.True(t, shared.Active())
	require.Equal(t, 1, src.Len())

	b := &collector[int]{}
	subB, err := shared.Subscribe(b)
	require.NoError(t, err)
	require.Equal(t, 1, src.Len(), "second sink must not subscribe upstream again")
	require.Equal(t, uint64(1), shared.Activations())

	src.Next(1)
	src.Next(2)
	require.Equal(t, []int{1, 2}, a.Values())
	require.Equal(t, a.Values(), b.Values())

	require.NoError(t, subA.Close())
	require.True(t, shared.Active())
	require.NoError(t, subB.Close())
	require.False(t, shared.Active())
	require.Equal(t, 0, src.Len())

	// emitted while inactive: never delivered
	src.Next(3)

	c := &collector[int]{}
	subC, err := shared.Subscribe(c)
	require.NoError(t, err)
	require.Equal(t, uint64(2), shared.Activations())

	src.Next(4)
	require.Equal(t, []int{4}, c.Values())
	require.NoError(t, subC.Close())
}

func TestShare_SubscribeFailureLeavesInactive(t *testing.T) {
	boom := errors.New("boom")
	shared := stream.Share[int](stream.Func[int](func(stream.Sink[int]) (stream.Subscription, error) {
		return nil, boom
	}))

	_, err := shared.Subscribe(&collector[int]{})
	require.ErrorIs(t, err, boom)
	require.False(t, shared.Active())
	require.Equal(t, 0, shared.Subscribers())
}

func TestShare_SynchronousEmissionDuringActivation(t *testing.T) {
	shared := stream.Share[int](stream.Func[int](func(sink stream.Sink[int]) (stream.Subscription, error) {
		sink.Next(42)
		return stream.SubscriptionFunc(nil), nil
	}))

	c := &collector[int]{}
	sub, err := shared.Subscribe(c)
	require.NoError(t, err)
	require.Equal(t, []int{42}, c.Values())
	require.NoError(t, sub.Close())
}

func TestShare_ConcurrentAttachDetach(t *testing.T) {
	src := stream.NewSubject[int]()
	shared := stream.Share[int](src)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			sub, err := shared.Subscribe(&collector[int]{})
			if err != nil {
				t.Error(err)
				return
			}

			src.Next(1)
			_ = sub.Close()
		}()
	}

	wg.Wait()

	require.False(t, shared.Active())
	require.Equal(t, 0, src.Len())
	require.Equal(t, 0, shared.Subscribers())
}

func TestShare_ConcurrentProducersSameSequenceForEveryConsumer(t *testing.T) {
	const perProducer = 20000

	a, b := stream.NewSubject[int](), stream.NewSubject[int]()
	shared := stream.Share(stream.Merge[int](a, b))

	x, y := &collector[int]{}, &collector[int]{}

	subX, err := shared.Subscribe(x)
	require.NoError(t, err)
	defer subX.Close()

	subY, err := shared.Subscribe(y)
	require.NoError(t, err)
	defer subY.Close()

	var wg sync.WaitGroup
	for p, src := range []*stream.Subject[int]{a, b} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perProducer {
				src.Next(p*perProducer + i)
			}
		}()
	}

	wg.Wait()

	xs, ys := x.Values(), y.Values()
	require.Len(t, xs, 2*perProducer)
	require.Equal(t, xs, ys)

	// per-producer order survives the interleaving
	last := []int{-1, -1}
	for _, v := range xs {
		p := v / perProducer
		require.Greater(t, v, last[p])
		last[p] = v
	}
}

func TestShare_ReentrantEmissionKeepsOrder(t *testing.T) {
	src := stream.NewSubject[int]()
	shared := stream.Share[int](src)

	first := &collector[int]{}
	echo := stream.Observer[int]{OnNext: func(v int) {
		first.Next(v)
		if v < 3 {
			src.Next(v + 1)
		}
	}}
	second := &collector[int]{}

	sub1, err := shared.Subscribe(echo)
	require.NoError(t, err)
	defer sub1.Close()

	sub2, err := shared.Subscribe(second)
	require.NoError(t, err)
	defer sub2.Close()

	src.Next(1)

	require.Equal(t, []int{1, 2, 3}, first.Values())
	require.Equal(t, []int{1, 2, 3}, second.Values())
}

func TestShare_Close(t *testing.T) {
	src := stream.NewSubject[int]()
	shared := stream.Share[int](src)
	c := &collector[int]{}

	sub, err := shared.Subscribe(c)
	require.NoError(t, err)
	require.NoError(t, shared.Close())
	require.Equal(t, 0, src.Len())

	src.Next(1)
	require.Empty(t, c.Values())
	require.NoError(t, sub.Close())

	_, err = shared.Subscribe(c)
	require.ErrorIs(t, err, stream.ErrClosed)
}

func TestFilterAndMap(t *testing.T) {
	src := stream.NewSubject[int]()
	c := &collector[string]{}

	even := stream.Filter[int](src, func(v int) bool { return v%2 == 0 })
	labels := stream.Map(even, func(v int) (string, error) {
		if v > 4 {
			return "", errors.New("too big")
		}

		return string(rune('a' + v)), nil
	})

	sub, err := labels.Subscribe(c)
	require.NoError(t, err)

	for i := range 7 {
		src.Next(i)
	}

	require.Equal(t, []string{"a", "c", "e"}, c.Values())
	require.Len(t, c.errs, 1)
	require.NoError(t, sub.Close())
}

func TestEmpty(t *testing.T) {
	sub, err := stream.Empty[int]().Subscribe(&collector[int]{})
	require.NoError(t, err)
	require.NoError(t, sub.Close())
}
