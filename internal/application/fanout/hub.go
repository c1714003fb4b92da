// ABOUTME: Notification fan-out with per-subscriber FIFO queues
// ABOUTME: Caches the last broadcast and seeds new subscribers with it
package fanout

import (
	"sync"

	"github.com/harper/radiod/internal/domain/message"
	"github.com/harper/radiod/internal/infrastructure/ring"
)

// Subscriber is one connection's outbound queue. Ready is signalled whenever
// an item is appended; Done is closed on unsubscribe.
type Subscriber struct {
	id    string
	queue *ring.Queue[message.Notification]
	ready chan struct{}
	done  chan struct{}
}

func (s *Subscriber) ID() string {
	return s.id
}

// Next pops the oldest queued notification.
func (s *Subscriber) Next() (message.Notification, bool) {
	return s.queue.Pop()
}

func (s *Subscriber) Pending() int {
	return s.queue.Len()
}

func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) push(n message.Notification) {
	s.queue.Push(n)
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

type Hub struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
	last *message.Notification
}

func New() *Hub {
	return &Hub{subs: make(map[string]*Subscriber)}
}

// Subscribe registers id. Seeding and registration happen under the same
// lock as Broadcast, so a subscriber sees either the cached notification or
// the broadcast that replaced it, never both and never neither.
func (h *Hub) Subscribe(id string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subs[id]; ok {
		close(old.done)
	}

	s := &Subscriber{
		id:    id,
		queue: ring.New[message.Notification](16),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	if h.last != nil {
		s.push(*h.last)
	}
	h.subs[id] = s
	return s
}

// Unsubscribe drops id and its queue. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.done)
	}
}

// Broadcast caches n as the last notification and queues it for every
// subscriber. Safe for concurrent use.
func (h *Hub) Broadcast(n message.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = &n
	for _, s := range h.subs {
		s.push(n)
	}
}

func (h *Hub) Last() (message.Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last == nil {
		return message.Notification{}, false
	}
	return *h.last, true
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.done)
	}
}
