package client

import "context"

// CounterpartiesClientInterface defines the interface for the counterparties service client
type CounterpartiesClientInterface interface {
	ValidateCounterparty(ctx context.Context, counterpartyID, tenantID string) (bool, string, error)
}

// DocumentsClientInterface defines the interface for the documents service client
type DocumentsClientInterface interface {
	CreateDocument(ctx context.Context, tenantID string, payload any, userID string) (string, error)
	GetDocumentFileURL(ctx context.Context, tenantID, documentID string) (string, error)
}

// EventPublisherInterface defines the interface for domain event publishing
type EventPublisherInterface interface {
	Publish(ctx context.Context, event *Event) error
}
