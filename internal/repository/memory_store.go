package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

type memKey struct {
	tenantID string
	id       string
}

type memTxKey struct{}

// MemoryStore is an in-memory implementation of the repositories, used for
// local runs (STORE_DRIVER=memory) and tests. Every record is scoped by
// tenant; a record is invisible to other tenants.
type MemoryStore struct {
	mu          sync.RWMutex
	contracts   map[memKey]domain.Contract
	amendments  map[memKey]domain.Amendment
	fulfilments map[memKey]domain.Fulfilment // keyed by contract id
	audit       []*AuditEntry

	txMu sync.Mutex

	Contracts   *MemoryContractRepository
	Amendments  *MemoryAmendmentRepository
	Fulfilments *MemoryFulfilmentRepository
	Audit       *MemoryAuditRepository
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		contracts:   make(map[memKey]domain.Contract),
		amendments:  make(map[memKey]domain.Amendment),
		fulfilments: make(map[memKey]domain.Fulfilment),
	}
	s.Contracts = &MemoryContractRepository{s: s}
	s.Amendments = &MemoryAmendmentRepository{s: s}
	s.Fulfilments = &MemoryFulfilmentRepository{s: s}
	s.Audit = &MemoryAuditRepository{s: s}
	return s
}

// memTx is the undo log of one transaction. Each entry reverts a single
// write and runs with s.mu held.
type memTx struct {
	undo []func()
}

func memTxFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// onRollback registers undo for a write made under ctx. Writes outside a
// transaction are never reverted. Must be called with s.mu held.
func (s *MemoryStore) onRollback(ctx context.Context, undo func()) {
	if tx := memTxFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

// InTx runs transactions one at a time. When fn fails only the writes made
// through fn's context are reverted, newest first. Nested calls join the
// outer transaction.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if memTxFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// MemoryContractRepository stores contracts in a MemoryStore.
type MemoryContractRepository struct{ s *MemoryStore }

func (r *MemoryContractRepository) Create(ctx context.Context, c domain.Contract) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{c.TenantID, c.ID}
	if _, ok := s.contracts[k]; ok {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("contract %q already exists", c.ID))
	}
	if s.contractNoTaken(c.TenantID, c.ContractNo, c.ID) {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("contract number %q already exists", c.ContractNo))
	}
	s.contracts[k] = c
	s.onRollback(ctx, func() { delete(s.contracts, k) })
	return nil
}

func (r *MemoryContractRepository) GetByID(_ context.Context, id, tenantID string) (domain.Contract, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[memKey{tenantID, id}]
	if !ok {
		return domain.Contract{}, errors.NotFound("contract", id)
	}
	return c, nil
}

func (r *MemoryContractRepository) List(_ context.Context, tenantID string, f ContractFilter) ([]domain.Contract, int64, error) {
	s := r.s
	s.mu.RLock()
	matched := make([]domain.Contract, 0)
	for k, c := range s.contracts {
		if k.tenantID == tenantID && matchContract(c, f) {
			matched = append(matched, c)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Contract) int {
		n := compareContracts(a, b, f.SortBy)
		if n == 0 {
			n = strings.Compare(a.ID, b.ID)
		}
		if f.SortDesc {
			return -n
		}
		return n
	})

	total := int64(len(matched))
	start := min(max(f.Offset, 0), len(matched))
	end := len(matched)
	if f.Limit > 0 {
		end = min(start+f.Limit, len(matched))
	}
	return matched[start:end], total, nil
}

func (r *MemoryContractRepository) Update(ctx context.Context, c domain.Contract, expectedVersion int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{c.TenantID, c.ID}
	cur, ok := s.contracts[k]
	if !ok {
		return errors.NotFound("contract", c.ID)
	}
	if cur.Version != expectedVersion {
		return errors.ConcurrencyConflict("contract", c.ID, expectedVersion)
	}
	if s.contractNoTaken(c.TenantID, c.ContractNo, c.ID) {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("contract number %q already exists", c.ContractNo))
	}
	s.contracts[k] = c
	s.onRollback(ctx, func() { s.contracts[k] = cur })
	return nil
}

// Delete removes the contract with its amendments and fulfilment. The audit
// trail is kept.
func (r *MemoryContractRepository) Delete(ctx context.Context, id, tenantID string, expectedVersion int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{tenantID, id}
	cur, ok := s.contracts[k]
	if !ok {
		return errors.NotFound("contract", id)
	}
	if cur.Version != expectedVersion {
		return errors.ConcurrencyConflict("contract", id, expectedVersion)
	}
	f, hadFulfilment := s.fulfilments[k]
	removed := make(map[memKey]domain.Amendment)
	for ak, a := range s.amendments {
		if ak.tenantID == tenantID && a.ContractID == id {
			removed[ak] = a
			delete(s.amendments, ak)
		}
	}
	delete(s.contracts, k)
	delete(s.fulfilments, k)

	s.onRollback(ctx, func() {
		s.contracts[k] = cur
		if hadFulfilment {
			s.fulfilments[k] = f
		}
		maps.Copy(s.amendments, removed)
	})
	return nil
}

// contractNoTaken must be called with s.mu held.
func (s *MemoryStore) contractNoTaken(tenantID, contractNo, exceptID string) bool {
	for k, c := range s.contracts {
		if k.tenantID == tenantID && k.id != exceptID && c.ContractNo == contractNo {
			return true
		}
	}
	return false
}

func matchContract(c domain.Contract, f ContractFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
		return false
	}
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.Commodity != nil && c.Commodity != *f.Commodity {
		return false
	}
	if f.CounterpartyID != nil && c.CounterpartyID != *f.CounterpartyID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(c.ContractNo), strings.ToLower(f.Search)) {
		return false
	}
	if f.DeliveryFrom != nil && c.DeliveryWindow.To.Before(*f.DeliveryFrom) {
		return false
	}
	if f.DeliveryTo != nil && c.DeliveryWindow.From.After(*f.DeliveryTo) {
		return false
	}
	return true
}

func compareContracts(a, b domain.Contract, by SortField) int {
	switch by {
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortContractNo:
		return strings.Compare(a.ContractNo, b.ContractNo)
	case SortDeliveryFrom:
		return a.DeliveryWindow.From.Compare(b.DeliveryWindow.From)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// MemoryAmendmentRepository stores amendments in a MemoryStore.
type MemoryAmendmentRepository struct{ s *MemoryStore }

func (r *MemoryAmendmentRepository) Create(ctx context.Context, a domain.Amendment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{a.TenantID, a.ID}
	if _, ok := s.amendments[k]; ok {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("amendment %q already exists", a.ID))
	}
	if _, ok := s.contracts[memKey{a.TenantID, a.ContractID}]; !ok {
		return errors.NotFound("contract", a.ContractID)
	}
	s.amendments[k] = a
	s.onRollback(ctx, func() { delete(s.amendments, k) })
	return nil
}

func (r *MemoryAmendmentRepository) GetByID(_ context.Context, id, tenantID string) (domain.Amendment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.amendments[memKey{tenantID, id}]
	if !ok {
		return domain.Amendment{}, errors.NotFound("amendment", id)
	}
	return a, nil
}

func (r *MemoryAmendmentRepository) ListByContract(_ context.Context, contractID, tenantID string) ([]domain.Amendment, error) {
	s := r.s
	s.mu.RLock()
	out := make([]domain.Amendment, 0)
	for k, a := range s.amendments {
		if k.tenantID == tenantID && a.ContractID == contractID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Amendment) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *MemoryAmendmentRepository) Update(ctx context.Context, a domain.Amendment, expectedVersion int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{a.TenantID, a.ID}
	cur, ok := s.amendments[k]
	if !ok {
		return errors.NotFound("amendment", a.ID)
	}
	if cur.Version != expectedVersion {
		return errors.ConcurrencyConflict("amendment", a.ID, expectedVersion)
	}
	s.amendments[k] = a
	s.onRollback(ctx, func() { s.amendments[k] = cur })
	return nil
}

// MemoryFulfilmentRepository stores fulfilments in a MemoryStore.
type MemoryFulfilmentRepository struct{ s *MemoryStore }

func (r *MemoryFulfilmentRepository) Create(ctx context.Context, f domain.Fulfilment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{f.TenantID, f.ContractID}
	if _, ok := s.fulfilments[k]; ok {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("fulfilment for contract %q already exists", f.ContractID))
	}
	if _, ok := s.contracts[k]; !ok {
		return errors.NotFound("contract", f.ContractID)
	}
	s.fulfilments[k] = cloneFulfilment(f)
	s.onRollback(ctx, func() { delete(s.fulfilments, k) })
	return nil
}

func (r *MemoryFulfilmentRepository) GetByContract(_ context.Context, contractID, tenantID string) (domain.Fulfilment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fulfilments[memKey{tenantID, contractID}]
	if !ok {
		return domain.Fulfilment{}, errors.NotFound("fulfilment", contractID)
	}
	return cloneFulfilment(f), nil
}

func (r *MemoryFulfilmentRepository) Update(ctx context.Context, f domain.Fulfilment, expectedVersion int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{f.TenantID, f.ContractID}
	cur, ok := s.fulfilments[k]
	if !ok || cur.ID != f.ID {
		return errors.NotFound("fulfilment", f.ID)
	}
	if cur.Version != expectedVersion {
		return errors.ConcurrencyConflict("fulfilment", f.ID, expectedVersion)
	}
	s.fulfilments[k] = cloneFulfilment(f)
	s.onRollback(ctx, func() { s.fulfilments[k] = cur })
	return nil
}

func cloneFulfilment(f domain.Fulfilment) domain.Fulfilment {
	f.Schedule = slices.Clone(f.Schedule)
	f.Timeline = slices.Clone(f.Timeline)
	return f
}

// MemoryAuditRepository keeps audit entries in append order.
type MemoryAuditRepository struct{ s *MemoryStore }

func (r *MemoryAuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now().UTC()
	}
	stored := *entry
	s.audit = append(s.audit, &stored)
	s.onRollback(ctx, func() {
		s.audit = slices.DeleteFunc(s.audit, func(e *AuditEntry) bool { return e == &stored })
	})
	return nil
}

func (r *MemoryAuditRepository) GetByEntity(_ context.Context, entityID, tenantID string) ([]*AuditEntry, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*AuditEntry
	for _, e := range s.audit {
		if e.EntityID == entityID && e.TenantID == tenantID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
