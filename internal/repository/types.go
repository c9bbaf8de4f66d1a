package repository

import (
	"encoding/json"
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
)

// SortField is a column contracts can be ordered by.
type SortField string

const (
	SortCreatedAt    SortField = "created_at"
	SortUpdatedAt    SortField = "updated_at"
	SortContractNo   SortField = "contract_no"
	SortDeliveryFrom SortField = "delivery_from"
)

// ContractFilter narrows a tenant's contract list. Zero values match everything.
type ContractFilter struct {
	Statuses       []domain.ContractStatus
	Type           *domain.ContractType
	Commodity      *domain.Commodity
	CounterpartyID *string
	Search         string     // case-insensitive contract number substring
	DeliveryFrom   *time.Time // window overlap lower bound
	DeliveryTo     *time.Time // window overlap upper bound
	SortBy         SortField
	SortDesc       bool
	Limit          int
	Offset         int
}

// AuditEntry is one immutable record in the audit log.
type AuditEntry struct {
	ID          string
	TenantID    string
	Entity      string // contract | amendment | fulfilment
	EntityID    string
	Action      string
	ActorID     string
	Before      json.RawMessage
	After       json.RawMessage
	Metadata    map[string]any
	PerformedAt time.Time
}
