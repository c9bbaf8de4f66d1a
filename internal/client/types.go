package client

import "time"

// ValidateCounterpartyResponse represents the counterparty validation response
type ValidateCounterpartyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// CreateDocumentRequest represents the create document request
type CreateDocumentRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Kind     string `json:"kind"`
	Payload  any    `json:"payload"`
}

// CreateDocumentResponse represents the create document response
type CreateDocumentResponse struct {
	ID string `json:"id"`
}

// DocumentURLResponse represents the document file url response
type DocumentURLResponse struct {
	URL string `json:"url"`
}

// EventActor identifies who caused an event.
type EventActor struct {
	UserID string `json:"user_id"`
}

// EventMetadata carries the aggregate version after the change and the
// emitting service.
type EventMetadata struct {
	Version int    `json:"version"`
	Source  string `json:"source"`
}

// Event is the JSON schema published to NATS.
type Event struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	AggregateID string         `json:"aggregate_id"`
	TenantID    string         `json:"tenant_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Actor       EventActor     `json:"actor"`
	Payload     map[string]any `json:"payload,omitempty"`
	Metadata    EventMetadata  `json:"metadata"`
}
