package service

import (
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
)

// CreateContractRequest represents a create contract request
type CreateContractRequest struct {
	TenantID       string
	UserID         string
	ContractNo     string // generated when empty
	Type           domain.ContractType
	Commodity      domain.Commodity
	CounterpartyID string
	Incoterm       string
	DeliveryWindow domain.DeliveryWindow
	Qty            domain.Quantity
	Pricing        domain.Pricing
	Delivery       domain.DeliveryTerms
	Notes          *string
}

// UpdateContractRequest represents an update contract request. When
// ExpectedVersion is set the update fails unless it matches the stored version.
type UpdateContractRequest struct {
	ID              string
	TenantID        string
	UserID          string
	ExpectedVersion *int
	Patch           domain.ContractPatch
}

// ListContractsRequest represents a list contracts request
type ListContractsRequest struct {
	TenantID       string
	Statuses       []domain.ContractStatus
	Type           *domain.ContractType
	Commodity      *domain.Commodity
	CounterpartyID *string
	Search         string
	DeliveryFrom   *time.Time
	DeliveryTo     *time.Time
	SortBy         string
	SortDesc       bool
	Page           int
	PageSize       int
}

// ContractPage is one page of contracts.
type ContractPage struct {
	Contracts  []domain.Contract `json:"contracts"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// CreateAmendmentRequest represents a create amendment request
type CreateAmendmentRequest struct {
	ContractID string
	TenantID   string
	UserID     string
	Type       domain.AmendmentType
	Reason     string
	Changes    domain.AmendmentChanges
	Notes      *string
}

// ApprovalResult is the outcome of an approved amendment.
type ApprovalResult struct {
	Amendment     domain.Amendment   `json:"amendment"`
	Contract      domain.Contract    `json:"contract"`
	Fulfilment    *domain.Fulfilment `json:"fulfilment,omitempty"`
	StatusChanged bool               `json:"status_changed"`
}

// RecordDeliveryRequest represents a record delivery request
type RecordDeliveryRequest struct {
	ContractID string
	TenantID   string
	UserID     string
	Qty        float64
	Delivery   *domain.DeliveryData
	Quality    *domain.QualityCheck
}

// DeliveryResult is the outcome of a recorded delivery.
type DeliveryResult struct {
	Contract      domain.Contract   `json:"contract"`
	Fulfilment    domain.Fulfilment `json:"fulfilment"`
	StatusChanged bool              `json:"status_changed"`
}

// RecordPricingRequest represents a record pricing request
type RecordPricingRequest struct {
	ContractID string
	TenantID   string
	UserID     string
	Qty        float64
	Price      float64
}

// RecordInvoicingRequest represents a record invoicing request
type RecordInvoicingRequest struct {
	ContractID string
	TenantID   string
	UserID     string
	Qty        float64
	InvoiceRef *string
}

// AddDeliveryScheduleRequest represents an add delivery schedule request
type AddDeliveryScheduleRequest struct {
	ContractID  string
	TenantID    string
	UserID      string
	SlotID      string // generated when empty
	PlannedDate time.Time
	Qty         float64
}

// UpdateDeliveryStatusRequest represents an update delivery status request
type UpdateDeliveryStatusRequest struct {
	ContractID string
	TenantID   string
	UserID     string
	SlotID     string
	Status     domain.SlotStatus
	ActualDate *time.Time
}

// ContractDocument is an issued contract document.
type ContractDocument struct {
	ContractID string `json:"contract_id"`
	DocumentID string `json:"document_id"`
	FileURL    string `json:"file_url"`
}
