package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"table-service/internal/broker"
	"table-service/internal/models"
	"table-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RelayWorker replays events committed by other instances into the local
// hub, so observers connected here see every table regardless of origin.
type RelayWorker struct {
	consumer *broker.Consumer
	local    broker.Sink
	instance string
	logger   *zap.Logger
}

// NewRelayWorker creates a new relay worker
func NewRelayWorker(consumer *broker.Consumer, local broker.Sink, instanceID string) *RelayWorker {
	return &RelayWorker{
		consumer: consumer,
		local:    local,
		instance: instanceID,
		logger:   util.ComponentLogger("relay-worker"),
	}
}

// Start starts the worker
func (w *RelayWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting relay worker", zap.String("instance_id", w.instance))
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *RelayWorker) Stop() error {
	w.logger.Info("Stopping relay worker")
	return w.consumer.Close()
}

// HandleMessage decodes one event and delivers it locally unless this
// instance produced it; local events already reached the hub directly.
func (w *RelayWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.Origin == w.instance {
		return nil
	}

	if err := w.local.Deliver(ctx, event); err != nil {
		return fmt.Errorf("failed to deliver relayed event: %w", err)
	}

	util.EventsPublishedTotal.WithLabelValues("relay", event.EventType).Inc()
	w.logger.Debug("Relayed event",
		zap.String("event_type", event.EventType),
		zap.Int("table_number", event.TableNumber),
		zap.String("origin", event.Origin))
	return nil
}
