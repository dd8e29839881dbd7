package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscription channel capacity
const DefaultBuffer = 100

// ErrShutdown is returned by Subscribe after Shutdown
var ErrShutdown = errors.New("pubsub shut down")

// PubSub fans messages out to topic subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the message.
type PubSub[T any] struct {
	subscribers map[string]map[*Subscription[T]]bool
	mu          sync.RWMutex
	shutdown    chan struct{}
	isShutdown  bool
	buffer      int
	dropped     atomic.Uint64
}

// Subscription represents a subscription to a topic
type Subscription[T any] struct {
	topic     string
	channel   chan T
	ps        *PubSub[T]
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPubSub creates a PubSub whose subscriptions buffer DefaultBuffer messages
func NewPubSub[T any]() *PubSub[T] {
	return NewPubSubWithBuffer[T](DefaultBuffer)
}

// NewPubSubWithBuffer creates a PubSub with the given subscription buffer
func NewPubSubWithBuffer[T any](buffer int) *PubSub[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &PubSub[T]{
		subscribers: make(map[string]map[*Subscription[T]]bool),
		shutdown:    make(chan struct{}),
		buffer:      buffer,
	}
}

// Subscribe creates a subscription that lives until ctx is done,
// Unsubscribe is called, or the PubSub shuts down
func (ps *PubSub[T]) Subscribe(ctx context.Context, topic string) (*Subscription[T], error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		topic:   topic,
		channel: make(chan T, ps.buffer),
		ps:      ps,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.isShutdown {
		ps.mu.Unlock()
		cancel()
		return nil, ErrShutdown
	}
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription[T]]bool)
	}
	ps.subscribers[topic][sub] = true
	ps.mu.Unlock()

	// Monitor context cancellation
	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			cancel()
		}
	}()

	return sub, nil
}

// Publish sends a message to every subscriber of a topic and returns how
// many received it. The read lock is held across the non-blocking sends so
// no channel can be closed mid-send.
func (ps *PubSub[T]) Publish(topic string, message T) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.isShutdown {
		return 0
	}

	delivered := 0
	for sub := range ps.subscribers[topic] {
		select {
		case sub.channel <- message:
			delivered++
		default:
			ps.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full
func (ps *PubSub[T]) Dropped() uint64 {
	return ps.dropped.Load()
}

// GetSubscriberCount returns the number of subscribers for a topic
func (ps *PubSub[T]) GetSubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes all subscriptions. It is safe to call more than once.
func (ps *PubSub[T]) Shutdown() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.isShutdown {
		return
	}
	ps.isShutdown = true
	close(ps.shutdown)

	for topic, subs := range ps.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(ps.subscribers, topic)
	}
}

// Channel returns the subscription's message channel. It is closed when
// the subscription ends.
func (s *Subscription[T]) Channel() <-chan T {
	return s.channel
}

// Unsubscribe removes the subscription
func (s *Subscription[T]) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()

	if subs := s.ps.subscribers[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}
	s.close()
}

// close closes the subscription channel safely (idempotent)
func (s *Subscription[T]) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
