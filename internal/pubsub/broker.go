package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Option configures a Broker.
type Option func(*options)

type options struct {
	buffer int
	onDrop func(EventType)
}

// WithBuffer sets the per-subscriber channel capacity. Values below 1 keep
// the default.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithDropHook calls fn, under the broker's read lock, each time an event is
// not delivered to a subscriber because its buffer was full.
func WithDropHook(fn func(EventType)) Option {
	return func(o *options) { o.onDrop = fn }
}

type subscriber[T any] struct {
	ch chan Event[T]
}

// Broker fans events out to every current subscriber.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Broker[T any] struct {
	opts options

	mu     sync.RWMutex
	subs   map[*subscriber[T]]struct{}
	closed bool

	dropped atomic.Int64
}

// NewBroker creates an open broker.
func NewBroker[T any](opts ...Option) *Broker[T] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{opts: o, subs: make(map[*subscriber[T]]struct{})}
}

// Subscribe returns a channel receiving every event published from now on.
// It is closed when ctx is cancelled or the broker is closed; subscribing
// to a closed broker yields an already closed channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscriber[T]{ch: make(chan Event[T], b.opts.buffer)}
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.unsubscribe(sub)
	}()
	return sub.ch
}

func (b *Broker[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish stamps payload and offers it to every subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	ev := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			if b.opts.onDrop != nil {
				b.opts.onDrop(eventType)
			}
		}
	}
}

// Close closes every subscriber channel. Later calls are no-ops.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	clear(b.subs)
}

// Consume subscribes and calls fn for every event on its own goroutine until
// ctx is cancelled or the broker is closed. The returned channel is closed
// once the consumer has exited.
func (b *Broker[T]) Consume(ctx context.Context, fn func(Event[T])) <-chan struct{} {
	ch := b.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			fn(ev)
		}
	}()
	return done
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}
