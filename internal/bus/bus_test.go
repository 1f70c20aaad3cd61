package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	model "github.com/glkeru/gamification/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(t *testing.T, topic string) model.Event {
	t.Helper()
	ev, err := model.NewEvent(topic, "test", map[string]string{"k": "v"})
	require.NoError(t, err)
	return ev
}

// recorder collects handled events behind a mutex so assertions can poll it
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) handle(ctx context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordSink struct {
	mu      sync.Mutex
	letters []string // subscriber names
	causes  []error
}

func (s *recordSink) DeadLetter(ctx context.Context, subscriber string, ev model.Event, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, subscriber)
	s.causes = append(s.causes, cause)
	return nil
}

func (s *recordSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.letters...)
}

func TestPublishFansOutPerTopic(t *testing.T) {
	b := New(zap.NewNop())
	defer b.Close()

	first := &recorder{}
	second := &recorder{}
	other := &recorder{}
	_, err := b.Subscribe("orders", "first", first.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("orders", "second", second.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("payments", "other", other.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))

	require.Eventually(t, func() bool {
		return first.count() == 1 && second.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, other.count())
}

func TestFailingSubscriberIsIsolated(t *testing.T) {
	sink := &recordSink{}
	b := New(zap.NewNop(), WithRetry(2, time.Millisecond), WithDeadLetterSink(sink))
	defer b.Close()

	attempts := make(chan struct{}, 16)
	boom := errors.New("boom")
	_, err := b.Subscribe("orders", "broken", func(ctx context.Context, ev model.Event) error {
		attempts <- struct{}{}
		return boom
	})
	require.NoError(t, err)
	healthy := &recorder{}
	_, err = b.Subscribe("orders", "healthy", healthy.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))

	require.Eventually(t, func() bool {
		return len(sink.names()) == 1 && healthy.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"broken"}, sink.names())
	require.ErrorIs(t, sink.causes[0], boom)
	// initial attempt plus the configured retries
	require.Len(t, attempts, 3)
	require.Equal(t, uint64(1), b.Health().DeadLettered)
}

func TestPanicingHandlerDeadLetters(t *testing.T) {
	sink := &recordSink{}
	b := New(zap.NewNop(), WithRetry(0, time.Millisecond), WithDeadLetterSink(sink))
	defer b.Close()

	rec := &recorder{}
	_, err := b.Subscribe("orders", "panics", func(ctx context.Context, ev model.Event) error {
		panic("unreachable state")
	})
	require.NoError(t, err)
	_, err = b.Subscribe("orders", "steady", rec.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))
	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))

	require.Eventually(t, func() bool {
		// the dispatch loop survives the panic and handles the next event
		return len(sink.names()) == 2 && rec.count() == 2
	}, time.Second, 5*time.Millisecond)
}

// flakyTransport fails until the given number of calls have been made
type flakyTransport struct {
	mu        sync.Mutex
	calls     int
	failBelow int
}

func (f *flakyTransport) Deliver(ctx context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failBelow {
		return errors.New("broker unreachable")
	}
	return nil
}

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	transport := &flakyTransport{failBelow: 5}
	b := New(zap.NewNop(), WithTransport(transport), WithBreaker(5, 50*time.Millisecond))
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := b.Publish(ctx, testEvent(t, "orders"))
		require.Error(t, err)
		require.NotErrorIs(t, err, model.ErrBusUnavailable)
	}
	require.Equal(t, "open", b.Health().CircuitState)

	// fail fast, the transport is not touched
	err := b.Publish(ctx, testEvent(t, "orders"))
	require.ErrorIs(t, err, model.ErrBusUnavailable)
	require.Equal(t, 5, transport.calls)

	// after the cool-down a single probe goes through and closes the circuit
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, testEvent(t, "orders")))
	require.Equal(t, "closed", b.Health().CircuitState)
	require.NoError(t, b.Publish(ctx, testEvent(t, "orders")))
}

func TestHealthCounters(t *testing.T) {
	transport := &flakyTransport{failBelow: 1}
	b := New(zap.NewNop(), WithTransport(transport))
	defer b.Close()
	ctx := context.Background()

	require.Error(t, b.Publish(ctx, testEvent(t, "orders")))
	require.NoError(t, b.Publish(ctx, testEvent(t, "orders")))
	require.NoError(t, b.Publish(ctx, testEvent(t, "orders")))

	h := b.Health()
	require.Equal(t, "ok", h.Status)
	require.Equal(t, uint64(2), h.Published)
	require.Equal(t, uint64(1), h.Failed)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(zap.NewNop())
	defer b.Close()

	rec := &recorder{}
	sub, err := b.Subscribe("orders", "rec", rec.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	b.Unsubscribe(sub)
	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, rec.count())
}

func TestCloseInterruptsRetryBackoff(t *testing.T) {
	sink := &recordSink{}
	b := New(zap.NewNop(), WithRetry(5, 300*time.Millisecond), WithDeadLetterSink(sink))

	failed := make(chan struct{}, 16)
	_, err := b.Subscribe("orders", "down", func(ctx context.Context, ev model.Event) error {
		select {
		case failed <- struct{}{}:
		default:
		}
		return errors.New("downstream unavailable")
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))
	<-failed

	// the full schedule would sleep out seconds of backoff
	start := time.Now()
	b.Close()
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, []string{"down"}, sink.names())
	require.Equal(t, uint64(1), b.Health().DeadLettered)
}

func TestSubscribeValidation(t *testing.T) {
	b := New(zap.NewNop())
	defer b.Close()

	_, err := b.Subscribe("", "name", func(ctx context.Context, ev model.Event) error { return nil })
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = b.Subscribe("topic", "", func(ctx context.Context, ev model.Event) error { return nil })
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = b.Subscribe("topic", "name", nil)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	b := New(zap.NewNop())

	rec := &recorder{}
	_, err := b.Subscribe("orders", "rec", rec.handle)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), testEvent(t, "orders")))
	}
	b.Close()
	require.Equal(t, 10, rec.count())

	_, err = b.Subscribe("orders", "late", rec.handle)
	require.ErrorIs(t, err, model.ErrBusUnavailable)
}
