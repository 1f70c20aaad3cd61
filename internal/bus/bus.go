package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	model "github.com/glkeru/gamification/internal/models"
	"go.uber.org/zap"
)

// Handler processes one delivered event. Delivery is at-least-once,
// handlers must be idempotent.
type Handler func(ctx context.Context, ev model.Event) error

// Transport accepts a published event for dispatch. The default transport
// fans out to in-process subscribers, a failing transport trips the breaker.
type Transport interface {
	Deliver(ctx context.Context, ev model.Event) error
}

// DeadLetterSink receives deliveries that exhausted their retries.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, subscriber string, ev model.Event, cause error) error
}

type Subscription struct {
	Topic string
	Name  string

	handler Handler
	ch      chan model.Event
	done    chan struct{}
	stop    sync.Once
}

type Health struct {
	Status       string `json:"status"`
	CircuitState string `json:"circuit_state"`
	Published    uint64 `json:"published_count"`
	Failed       uint64 `json:"failed_count"`
	DeadLettered uint64 `json:"dead_lettered_count"`
}

type Option func(*Bus)

func WithTransport(t Transport) Option {
	return func(b *Bus) { b.transport = t }
}

func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(b *Bus) { b.breaker = NewBreaker(threshold, cooldown) }
}

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(b *Bus) {
		b.retries = attempts
		b.backoff = backoff
	}
}

func WithDeadLetterSink(s DeadLetterSink) Option {
	return func(b *Bus) { b.sink = s }
}

func WithBuffer(n int) Option {
	return func(b *Bus) { b.buffer = n }
}

// Bus is the in-process topic broker. It holds no business data, only
// subscriber registrations and bookkeeping counters.
type Bus struct {
	logger    *zap.Logger
	transport Transport
	breaker   *Breaker
	sink      DeadLetterSink

	ctx    context.Context
	cancel context.CancelFunc

	retries int
	backoff time.Duration
	buffer  int

	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool
	wg     sync.WaitGroup

	published    atomic.Uint64
	failed       atomic.Uint64
	deadLettered atomic.Uint64
}

func New(logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:  logger,
		breaker: NewBreaker(5, 30*time.Second),
		retries: 3,
		backoff: 50 * time.Millisecond,
		buffer:  256,
		subs:    make(map[string][]*Subscription),
	}
	for _, o := range opts {
		o(b)
	}
	if b.transport == nil {
		b.transport = localTransport{b}
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// Publish hands the event to the transport behind the circuit breaker.
func (b *Bus) Publish(ctx context.Context, ev model.Event) error {
	if !b.breaker.Allow() {
		b.failed.Add(1)
		publishFailedTotal.Inc()
		return fmt.Errorf("publish %s: %w", ev.Type, model.ErrBusUnavailable)
	}
	if err := b.transport.Deliver(ctx, ev); err != nil {
		b.breaker.Failure()
		b.failed.Add(1)
		publishFailedTotal.Inc()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	b.breaker.Success()
	b.published.Add(1)
	publishedTotal.Inc()
	return nil
}

// Subscribe registers a named handler on a topic and starts its dispatch
// loop. The name identifies the subscriber in logs and dead letters.
func (b *Bus) Subscribe(topic, name string, handler Handler) (*Subscription, error) {
	if topic == "" || name == "" || handler == nil {
		return nil, fmt.Errorf("subscribe: topic, name and handler are required: %w", model.ErrValidation)
	}
	sub := &Subscription{
		Topic:   topic,
		Name:    name,
		handler: handler,
		ch:      make(chan model.Event, b.buffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", topic, model.ErrBusUnavailable)
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.dispatch(sub)
	return sub, nil
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	list := b.subs[sub.Topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.Topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	sub.stop.Do(func() { close(sub.done) })
}

// Close stops all dispatch loops after draining their queues. In-flight
// retry waits are cut short, the event dead-letters with its last error.
func (b *Bus) Close() {
	b.cancel()
	b.mu.Lock()
	b.closed = true
	var all []*Subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.stop.Do(func() { close(sub.done) })
	}
	b.wg.Wait()
}

func (b *Bus) Health() Health {
	state := b.breaker.State()
	status := "ok"
	if state != StateClosed {
		status = "degraded"
	}
	return Health{
		Status:       status,
		CircuitState: state.String(),
		Published:    b.published.Load(),
		Failed:       b.failed.Load(),
		DeadLettered: b.deadLettered.Load(),
	}
}

// dispatch delivers queued events to one subscriber. Failures stay inside
// this loop, other subscribers and topics are unaffected.
func (b *Bus) dispatch(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case ev := <-sub.ch:
			b.deliver(sub, ev)
		case <-sub.done:
			// drain what was queued before shutdown
			for {
				select {
				case ev := <-sub.ch:
					b.deliver(sub, ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(sub *Subscription, ev model.Event) {
	backoff := b.backoff
	var err error
	for attempt := 0; attempt <= b.retries; attempt++ {
		if attempt > 0 {
			if !b.wait(backoff) {
				// shutdown interrupted the retry wait, dead-letter with
				// the last error instead of sleeping out the schedule
				break
			}
			backoff *= 2
		}
		err = b.safeHandle(b.ctx, sub, ev)
		if err == nil {
			return
		}
		b.logger.Warn("handler failed",
			zap.String("subscriber", sub.Name),
			zap.String("topic", sub.Topic),
			zap.String("event", ev.ID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	b.deadLettered.Add(1)
	deadLetterTotal.WithLabelValues(sub.Name).Inc()
	if b.sink == nil {
		return
	}
	// parking must outlive shutdown, the sink gets a fresh context
	if serr := b.sink.DeadLetter(context.Background(), sub.Name, ev, err); serr != nil {
		b.logger.Error("dead letter sink failed",
			zap.String("subscriber", sub.Name),
			zap.String("event", ev.ID.String()),
			zap.Error(serr),
		)
	}
}

func (b *Bus) wait(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-b.ctx.Done():
		return false
	}
}

// safeHandle converts a handler panic into an error so one bad subscriber
// cannot take down the dispatch loop
func (b *Bus) safeHandle(ctx context.Context, sub *Subscription, ev model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, ev)
}

// localTransport fans out to the bus's own subscribers
type localTransport struct {
	bus *Bus
}

func (t localTransport) Deliver(ctx context.Context, ev model.Event) error {
	t.bus.mu.RLock()
	list := make([]*Subscription, len(t.bus.subs[ev.Type]))
	copy(list, t.bus.subs[ev.Type])
	t.bus.mu.RUnlock()

	for _, sub := range list {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
