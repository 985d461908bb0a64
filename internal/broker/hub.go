package broker

import (
	"context"
	"sync"

	"table-service/internal/models"
	"table-service/internal/util"
)

// Hub is the in-process topic router feeding SSE observers
type Hub struct {
	mu     sync.RWMutex
	nextID int
	closed bool
	topics map[string]map[int]chan models.Event
}

// Subscription receives events for one topic until closed
type Subscription struct {
	C <-chan models.Event

	hub   *Hub
	topic string
	id    int
	once  sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[int]chan models.Event)}
}

// Name implements Sink
func (h *Hub) Name() string { return "local" }

// Subscribe registers an observer on a topic
func (h *Hub) Subscribe(topic string, buffer int) *Subscription {
	ch := make(chan models.Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return &Subscription{C: ch, hub: h, topic: topic}
	}
	h.nextID++
	id := h.nextID
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[int]chan models.Event)
	}
	h.topics[topic][id] = ch
	h.mu.Unlock()

	return &Subscription{C: ch, hub: h, topic: topic, id: id}
}

// Close detaches the subscription and closes its channel
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		subs := s.hub.topics[s.topic]
		if ch, ok := subs[s.id]; ok {
			delete(subs, s.id)
			close(ch)
		}
		if len(subs) == 0 {
			delete(s.hub.topics, s.topic)
		}
	})
}

// Close ends every subscription and refuses new ones, so open streams return
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.topics {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.topics, topic)
	}
}

// Deliver implements Sink. Slow observers lose events rather than block others.
func (h *Hub) Deliver(ctx context.Context, event models.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, topic := range event.Topics() {
		for _, ch := range h.topics[topic] {
			select {
			case ch <- event:
			default:
				util.EventsDroppedTotal.WithLabelValues("local_subscriber").Inc()
			}
		}
	}
	return nil
}

// Subscribers reports the number of observers attached to a topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
