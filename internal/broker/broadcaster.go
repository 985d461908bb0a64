package broker

import (
	"context"
	"sync"
	"time"

	"table-service/internal/models"
	"table-service/internal/util"

	"go.uber.org/zap"
)

// Sink delivers one event to a transport
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event models.Event) error
}

// Broadcaster fans committed events out to every sink. Publishing never
// blocks: events are queued and delivered by a background loop, at most once.
type Broadcaster struct {
	queue   chan models.Event
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBroadcaster creates a broadcaster with a bounded queue
func NewBroadcaster(bufferSize int, sinks ...Sink) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Broadcaster{
		queue:   make(chan models.Event, bufferSize),
		sinks:   sinks,
		timeout: 5 * time.Second,
		logger:  util.ComponentLogger("broadcaster"),
		done:    make(chan struct{}),
	}
}

// Start runs the delivery loop until Close
func (b *Broadcaster) Start() {
	go func() {
		defer close(b.done)
		for event := range b.queue {
			b.deliver(event)
		}
	}()
}

// Publish enqueues events; when the queue is full the event is dropped
func (b *Broadcaster) Publish(ctx context.Context, events ...models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, event := range events {
		select {
		case b.queue <- event:
		default:
			util.EventsDroppedTotal.WithLabelValues("queue").Inc()
			b.logger.Warn("Event queue full, dropping event",
				zap.String("event_type", event.EventType),
				zap.Int("table_number", event.TableNumber))
		}
	}
}

func (b *Broadcaster) deliver(event models.Event) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		err := b.safeDeliver(ctx, sink, event)
		cancel()

		if err != nil {
			util.EventsDroppedTotal.WithLabelValues(sink.Name()).Inc()
			b.logger.Warn("Event delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("event_type", event.EventType),
				zap.Error(err))
			continue
		}
		util.EventsPublishedTotal.WithLabelValues(sink.Name(), event.EventType).Inc()
	}
}

// safeDeliver isolates a misbehaving sink from the delivery loop
func (b *Broadcaster) safeDeliver(ctx context.Context, sink Sink, event models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sinkPanic{value: r}
		}
	}()
	return sink.Deliver(ctx, event)
}

type sinkPanic struct{ value interface{} }

func (p *sinkPanic) Error() string { return "sink panicked" }

// Close stops accepting events and waits for the queue to drain
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}
