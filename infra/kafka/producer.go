// Package kafka adapts the engine's external trigger and notification
// boundaries to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"bazaar/service"
)

// eventEnvelope is the wire form of one session event.
type eventEnvelope struct {
	V         int               `json:"v"`
	SessionID uuid.UUID         `json:"session_id"`
	Kind      service.EventKind `json:"kind"`
	At        time.Time         `json:"at"`
	Payload   any               `json:"payload,omitempty"`
}

// Producer publishes session events; it is the engine's notification sink.
// Delivery is best effort: the engine logs failures and moves on.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// EmitSessionEvent implements service.NotificationSink. Messages are keyed
// by session id so one session's events stay ordered within a partition.
func (p *Producer) EmitSessionEvent(ctx context.Context, sessionID uuid.UUID, kind service.EventKind, payload any) error {
	body, err := json.Marshal(eventEnvelope{
		V:         1,
		SessionID: sessionID,
		Kind:      kind,
		At:        time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   sessionID[:],
		Value: body,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
