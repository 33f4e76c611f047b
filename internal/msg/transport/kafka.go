package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"counters-back/internal/model"
	"counters-back/pkg/kafka"
)

// KafkaPublisher wraps outbox events into envelopes and pushes them to the
// events topic, keyed by event id so redeliveries land on the same partition.
type KafkaPublisher struct {
	producer kafka.Producer
	topic    string
}

func NewKafkaPublisher(producer kafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.OutboxEvent) error {
	envelope := model.EventEnvelope{
		EventID:   event.ID,
		EventType: event.EventType,
		Payload:   event.Payload,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	key := []byte(event.ID.String())

	if _, _, err := p.producer.PushMessage(ctx, key, value, p.topic); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
