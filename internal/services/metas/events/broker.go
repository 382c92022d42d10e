package events

import (
	"context"
	"sync"
)

const defaultBuffer = 64

// Broker is an in-process publish/subscribe hub. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	onDrop func()
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(size int) BrokerOption {
	return func(b *Broker) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithDropHook registers fn to run whenever an event is dropped for a slow
// subscriber.
func WithDropHook(fn func()) BrokerOption {
	return func(b *Broker) {
		b.onDrop = fn
	}
}

// NewBroker builds an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription receives events until closed.
type Subscription struct {
	broker *Broker
	ch     chan Event
	once   sync.Once
}

// Events returns the delivery channel. It is closed when the subscription or
// the broker closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Subscribe attaches a new subscriber. Subscribing to a closed broker
// returns an already-closed subscription.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{broker: b, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Subscribers reports the number of attached subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers event to every subscriber with buffer room.
func (b *Broker) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
	return nil
}

// Close detaches every subscriber and closes their channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}
