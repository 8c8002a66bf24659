// Package broadcast implements the single-writer, many-reader fan-out used
// by the lobby (match directory updates) and the play coordinator
// (spectator byte stream). It generalizes the teacher's Hub
// (internal/handlers/websocket.go): a register/broadcast channel pair with
// per-subscriber buffered channels, except that no register channel is
// needed: Publish, Subscribe and Unsubscribe are plain synchronous methods
// guarded by one mutex, so any goroutine may call them.
package broadcast

import "sync"

// Broadcaster fans a single producer's values of type T out to any number
// of subscribers. Publish, Subscribe, Unsubscribe and Len are safe to call
// concurrently from multiple goroutines; an internal mutex serializes them.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]*subscriber[T]
	bufSize int
}

type subscriber[T any] struct {
	ch     chan T
	lagged chan struct{}
}

// New creates a Broadcaster whose per-subscriber channel holds bufSize
// pending values before that subscriber is dropped for lagging.
func New[T any](bufSize int) *Broadcaster[T] {
	return &Broadcaster[T]{
		subs:    make(map[int]*subscriber[T]),
		bufSize: bufSize,
	}
}

// Subscription is a consumer's view of one subscriber slot.
type Subscription[T any] struct {
	Events <-chan T
	Lagged <-chan struct{}

	b  *Broadcaster[T]
	id int
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.subs, s.id)
}

// Subscribe registers a new subscriber and returns its Subscription. The
// returned Events channel delivers every value Published after this call;
// it never closes by itself — watch Lagged to detect a dropped subscriber.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber[T]{
		ch:     make(chan T, b.bufSize),
		lagged: make(chan struct{}),
	}
	b.subs[id] = sub
	return &Subscription[T]{Events: sub.ch, Lagged: sub.lagged, b: b, id: id}
}

// Publish delivers value to every current subscriber without blocking. A
// subscriber whose buffer is full is dropped and its Lagged channel closed.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- value:
		default:
			delete(b.subs, id)
			close(sub.lagged)
		}
	}
}

// Len reports the current subscriber count (used for MatchInfo.Spectators).
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
