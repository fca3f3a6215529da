package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"consent-ledger/internal/platform/kafka/producer"
	audit "consent-ledger/pkg/platform/audit"
)

// Producer is the subset of producer.Producer used by the sink.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Sink publishes audit events to a Kafka topic keyed by event ID. It is
// append-only; reads go through the store the ingest consumer writes to.
type Sink struct {
	producer Producer
	topic    string
}

func NewSink(p Producer, topic string) *Sink {
	return &Sink{producer: p, topic: topic}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.ID),
		Value: value,
		Headers: map[string]string{
			"action":   event.Action,
			"category": string(event.Category),
		},
	}
	if err := s.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (s *Sink) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, audit.ErrListUnsupported
}

func (s *Sink) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, audit.ErrListUnsupported
}
