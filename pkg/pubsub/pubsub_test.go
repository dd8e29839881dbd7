package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type frame struct {
	Generation uint64
	Iteration  int
}

func recv[T any](t *testing.T, sub *Subscription[T]) (T, bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.Channel():
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
	}
	var zero T
	return zero, false
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	ps := NewPubSub[frame]()
	defer ps.Shutdown()

	subs := make([]*Subscription[frame], 4)
	for i := range subs {
		sub, err := ps.Subscribe(context.Background(), "positions")
		if err != nil {
			t.Fatalf("Failed to subscribe %d: %v", i, err)
		}
		subs[i] = sub
	}

	if n := ps.Publish("positions", frame{Generation: 2, Iteration: 7}); n != 4 {
		t.Errorf("Expected 4 deliveries, got %d", n)
	}
	for i, sub := range subs {
		msg, ok := recv(t, sub)
		if !ok || msg.Generation != 2 || msg.Iteration != 7 {
			t.Errorf("Subscriber %d got %+v (open=%v)", i, msg, ok)
		}
	}
}

func TestTopicIsolation(t *testing.T) {
	ps := NewPubSub[string]()
	defer ps.Shutdown()

	a, _ := ps.Subscribe(context.Background(), "a")
	b, _ := ps.Subscribe(context.Background(), "b")

	ps.Publish("a", "for a")
	if msg, _ := recv(t, a); msg != "for a" {
		t.Errorf("Expected 'for a', got %q", msg)
	}
	select {
	case msg := <-b.Channel():
		t.Errorf("Topic b received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	ps := NewPubSubWithBuffer[int](2)
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), "positions")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			ps.Publish("positions", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if ps.Dropped() != 8 {
		t.Errorf("Expected 8 dropped deliveries, got %d", ps.Dropped())
	}
	// Buffered messages arrive in publish order
	for want := 0; want < 2; want++ {
		if got, _ := recv(t, sub); got != want {
			t.Errorf("Expected %d, got %d", want, got)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), "positions")
	other, _ := ps.Subscribe(context.Background(), "positions")
	if ps.GetSubscriberCount("positions") != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", ps.GetSubscriberCount("positions"))
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if _, ok := recv(t, sub); ok {
		t.Error("Expected closed channel after Unsubscribe")
	}
	if n := ps.Publish("positions", 1); n != 1 {
		t.Errorf("Expected 1 delivery after unsubscribe, got %d", n)
	}

	other.Unsubscribe()
	if ps.GetSubscriberCount("positions") != 0 {
		t.Errorf("Expected topic to be empty, got %d", ps.GetSubscriberCount("positions"))
	}
}

func TestContextCancellation(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := ps.Subscribe(ctx, "positions")
	cancel()

	if _, ok := recv(t, sub); ok {
		t.Error("Expected channel to close on context cancellation")
	}
	deadline := time.Now().Add(time.Second)
	for ps.GetSubscriberCount("positions") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Cancelled subscription was not removed")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestConcurrentPublishAndUnsubscribe exercises publishers racing subscribers
// that leave
func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	ps := NewPubSubWithBuffer[int](4)
	defer ps.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sub, err := ps.Subscribe(context.Background(), "positions")
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range sub.Channel() {
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			sub.Unsubscribe()
		}()
	}

	for i := 0; i < 500; i++ {
		ps.Publish("positions", i)
	}
	wg.Wait()
}

func TestShutdown(t *testing.T) {
	ps := NewPubSub[int]()
	sub, _ := ps.Subscribe(context.Background(), "positions")

	ps.Shutdown()
	ps.Shutdown()

	if _, ok := recv(t, sub); ok {
		t.Error("Expected channel to close on shutdown")
	}
	if n := ps.Publish("positions", 1); n != 0 {
		t.Errorf("Expected no deliveries after shutdown, got %d", n)
	}
	if _, err := ps.Subscribe(context.Background(), "positions"); !errors.Is(err, ErrShutdown) {
		t.Errorf("Expected ErrShutdown, got %v", err)
	}
}
