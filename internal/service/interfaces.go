package service

import (
	"context"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/internal/repository"
)

// ContractRepository persists contracts. Update and Delete fail with a
// concurrency conflict when the stored version differs from expectedVersion.
type ContractRepository interface {
	Create(ctx context.Context, c domain.Contract) error
	GetByID(ctx context.Context, id, tenantID string) (domain.Contract, error)
	List(ctx context.Context, tenantID string, f repository.ContractFilter) ([]domain.Contract, int64, error)
	Update(ctx context.Context, c domain.Contract, expectedVersion int) error
	Delete(ctx context.Context, id, tenantID string, expectedVersion int) error
}

// AmendmentRepository persists amendments.
type AmendmentRepository interface {
	Create(ctx context.Context, a domain.Amendment) error
	GetByID(ctx context.Context, id, tenantID string) (domain.Amendment, error)
	ListByContract(ctx context.Context, contractID, tenantID string) ([]domain.Amendment, error)
	Update(ctx context.Context, a domain.Amendment, expectedVersion int) error
}

// FulfilmentRepository persists one fulfilment ledger per contract.
type FulfilmentRepository interface {
	Create(ctx context.Context, f domain.Fulfilment) error
	GetByContract(ctx context.Context, contractID, tenantID string) (domain.Fulfilment, error)
	Update(ctx context.Context, f domain.Fulfilment, expectedVersion int) error
}

// AuditLogger appends to the immutable audit trail.
type AuditLogger interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
}

// Transactor runs fn atomically; repositories called with the ctx passed to
// fn join the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
