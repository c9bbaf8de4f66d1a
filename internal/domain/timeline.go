package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventDelivery  EventKind = "delivery"
	EventPricing   EventKind = "pricing"
	EventInvoicing EventKind = "invoicing"
)

// TimelineEvent is one entry of the fulfilment ledger. The concrete types are
// DeliveryEvent, PricingEvent and InvoicingEvent.
type TimelineEvent interface {
	EventID() string
	Kind() EventKind
	At() time.Time
	Quantity() float64
	timelineEvent()
}

// QualityCheck is the result of an inspection of delivered goods. Score is 0-100.
type QualityCheck struct {
	Score       float64            `json:"score"`
	Grade       string             `json:"grade,omitempty"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
	InspectedBy string             `json:"inspected_by,omitempty"`
	Notes       string             `json:"notes,omitempty"`
}

// DeliveryData describes a physical delivery.
type DeliveryData struct {
	Reference      string       `json:"reference,omitempty"`
	Location       string       `json:"location,omitempty"`
	Transport      ShipmentType `json:"transport,omitempty"`
	DeliveredAt    *time.Time   `json:"delivered_at,omitempty"`
	ScheduleSlotID string       `json:"schedule_slot_id,omitempty"`
}

type DeliveryEvent struct {
	ID         string        `json:"id"`
	OccurredAt time.Time     `json:"occurred_at"`
	Qty        float64       `json:"qty"`
	Delivery   *DeliveryData `json:"delivery,omitempty"`
	Quality    *QualityCheck `json:"quality,omitempty"`
}

type PricingEvent struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
}

type InvoicingEvent struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Qty        float64   `json:"qty"`
	InvoiceRef *string   `json:"invoice_ref,omitempty"`
}

func (e DeliveryEvent) EventID() string   { return e.ID }
func (e DeliveryEvent) Kind() EventKind   { return EventDelivery }
func (e DeliveryEvent) At() time.Time     { return e.OccurredAt }
func (e DeliveryEvent) Quantity() float64 { return e.Qty }
func (DeliveryEvent) timelineEvent()      {}

func (e PricingEvent) EventID() string   { return e.ID }
func (e PricingEvent) Kind() EventKind   { return EventPricing }
func (e PricingEvent) At() time.Time     { return e.OccurredAt }
func (e PricingEvent) Quantity() float64 { return e.Qty }
func (PricingEvent) timelineEvent()      {}

func (e InvoicingEvent) EventID() string   { return e.ID }
func (e InvoicingEvent) Kind() EventKind   { return EventInvoicing }
func (e InvoicingEvent) At() time.Time     { return e.OccurredAt }
func (e InvoicingEvent) Quantity() float64 { return e.Qty }
func (InvoicingEvent) timelineEvent()      {}

// Timeline is the append-only, time-ordered event log.
type Timeline []TimelineEvent

type timelineEnvelope struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes each event as {"kind": ..., "data": ...}.
func (t Timeline) MarshalJSON() ([]byte, error) {
	out := make([]timelineEnvelope, 0, len(t))
	for _, e := range t {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, timelineEnvelope{Kind: e.Kind(), Data: data})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the envelope form written by MarshalJSON.
func (t *Timeline) UnmarshalJSON(b []byte) error {
	var envs []timelineEnvelope
	if err := json.Unmarshal(b, &envs); err != nil {
		return err
	}
	events := make(Timeline, 0, len(envs))
	for _, env := range envs {
		var (
			e   TimelineEvent
			err error
		)
		switch env.Kind {
		case EventDelivery:
			var d DeliveryEvent
			err = json.Unmarshal(env.Data, &d)
			e = d
		case EventPricing:
			var p PricingEvent
			err = json.Unmarshal(env.Data, &p)
			e = p
		case EventInvoicing:
			var i InvoicingEvent
			err = json.Unmarshal(env.Data, &i)
			e = i
		default:
			return fmt.Errorf("unknown timeline event kind %q", env.Kind)
		}
		if err != nil {
			return fmt.Errorf("decode %s event: %w", env.Kind, err)
		}
		events = append(events, e)
	}
	*t = events
	return nil
}

// Deliveries returns the delivery events in order.
func (t Timeline) Deliveries() []DeliveryEvent {
	var out []DeliveryEvent
	for _, e := range t {
		if d, ok := e.(DeliveryEvent); ok {
			out = append(out, d)
		}
	}
	return out
}

// Pricings returns the pricing events in order.
func (t Timeline) Pricings() []PricingEvent {
	var out []PricingEvent
	for _, e := range t {
		if p, ok := e.(PricingEvent); ok {
			out = append(out, p)
		}
	}
	return out
}
