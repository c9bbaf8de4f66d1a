package repository

import (
	"context"

	"github.com/pesio-ai/be-trade-contracts/pkg/database"
)

// Store groups the Postgres repositories over one pool. Repositories read the
// transaction bound by InTx from the context, so writes made inside fn commit
// or roll back together.
type Store struct {
	db          *database.DB
	Contracts   *ContractRepository
	Amendments  *AmendmentRepository
	Fulfilments *FulfilmentRepository
	Audit       *AuditRepository
}

// NewStore wires all repositories to db.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:          db,
		Contracts:   NewContractRepository(db),
		Amendments:  NewAmendmentRepository(db),
		Fulfilments: NewFulfilmentRepository(db),
		Audit:       NewAuditRepository(db),
	}
}

// InTx runs fn in a single database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.InTx(ctx, fn)
}
