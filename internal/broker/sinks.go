package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"table-service/internal/models"
)

// KafkaSink appends events to the shared event topic
type KafkaSink struct {
	producer *Producer
}

// NewKafkaSink creates a sink backed by a Kafka producer
func NewKafkaSink(producer *Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, event models.Event) error {
	return s.producer.PublishEvent(ctx, models.TableTopic(event.TableNumber), event)
}

// ChannelPublisher is satisfied by the Redis client
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisSink publishes every event on its table channel and the admin channel
type RedisSink struct {
	client ChannelPublisher
	prefix string
}

// NewRedisSink creates a pub/sub sink; channels are prefixed to share a Redis
func NewRedisSink(client ChannelPublisher, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	for _, topic := range event.Topics() {
		if err := s.client.Publish(ctx, s.prefix+topic, payload); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
	}
	return nil
}
