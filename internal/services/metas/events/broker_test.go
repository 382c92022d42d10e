package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBrokerDeliversToEverySubscriber(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	first := broker.Subscribe()
	second := broker.Subscribe()
	defer first.Close()
	defer second.Close()

	event := Event{ID: "e1", Type: ResultApproved, SubjectID: "r1"}
	if err := broker.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, sub := range []*Subscription{first, second} {
		select {
		case got := <-sub.Events():
			if got.ID != "e1" {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	var dropped atomic.Int64
	broker := NewBroker(WithBuffer(1), WithDropHook(func() { dropped.Add(1) }))
	defer broker.Close()

	sub := broker.Subscribe()
	defer sub.Close()

	for i := 0; i < 3; i++ {
		if err := broker.Publish(context.Background(), Event{Type: ResultSubmitted}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if got := dropped.Load(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
	if got := len(sub.Events()); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe()
	if broker.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", broker.Subscribers())
	}
	sub.Close()
	sub.Close()
	if broker.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", broker.Subscribers())
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestBrokerCloseEndsConsumers(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range sub.Events() {
		}
	}()

	broker.Close()
	wg.Wait()

	late := broker.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Fatal("expected subscription on closed broker to be closed")
	}
	if err := broker.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	sub.Close()
}

func TestBrokerPublishHonorsContext(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := broker.Publish(ctx, Event{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("publish error = %v, want %v", err, context.Canceled)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	failure := errors.New("down")
	ok := &recordingPublisher{}
	broken := &recordingPublisher{err: failure}

	err := Fanout{ok, nil, broken, Discard{}}.Publish(context.Background(), Event{ID: "e1"})
	if !errors.Is(err, failure) {
		t.Fatalf("fanout error = %v, want %v", err, failure)
	}
	if len(ok.events) != 1 || len(broken.events) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(ok.events), len(broken.events))
	}
}
