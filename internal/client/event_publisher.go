package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// MessagePublisher is the transport under EventPublisher; *nats.Client
// satisfies it.
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// EventPublisher publishes contract lifecycle events to NATS.
//
// Subject convention: <prefix>.<event_type>, e.g. events.trade.contract.created
// The event id doubles as the JetStream message id, so retried publishes are
// de-duplicated by the stream.
type EventPublisher struct {
	nats   MessagePublisher
	prefix string
	log    zerolog.Logger
}

// NewEventPublisher creates a publisher backed by the given NATS client.
func NewEventPublisher(nats MessagePublisher, prefix string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{nats: nats, prefix: prefix, log: log}
}

// Subject returns the subject an event type is published on.
func (p *EventPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return fmt.Sprintf("%s.%s", p.prefix, eventType)
}

// Publish sends one event. Callers treat failures as non-fatal.
func (p *EventPublisher) Publish(ctx context.Context, event *Event) error {
	if p.nats == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType, err)
	}

	subject := p.Subject(event.EventType)
	if err := p.nats.Publish(ctx, subject, data, event.EventID); err != nil {
		return fmt.Errorf("publish event %s: %w", event.EventType, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("event_id", event.EventID).
		Str("aggregate_id", event.AggregateID).
		Msg("event published")
	return nil
}
