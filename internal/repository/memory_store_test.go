package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

var base = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func seedContract(t *testing.T, s *MemoryStore, tenantID, id, no string, mutate func(*domain.Contract)) domain.Contract {
	t.Helper()
	price := 200.0
	c, err := domain.NewContract(domain.Contract{
		ID:             id,
		TenantID:       tenantID,
		ContractNo:     no,
		Type:           domain.ContractTypeSell,
		Commodity:      domain.CommodityCorn,
		CounterpartyID: "cp-1",
		Incoterm:       "FOB",
		DeliveryWindow: domain.DeliveryWindow{From: base, To: base.AddDate(0, 1, 0)},
		Qty:            domain.Quantity{Unit: "mt", Contracted: 100},
		Pricing:        domain.Pricing{Mode: domain.PricingModeFixed, Currency: "USD", Price: &price},
		Delivery:       domain.DeliveryTerms{ShipmentType: domain.ShipmentTruck},
	}, base)
	if err != nil {
		t.Fatalf("NewContract: %v", err)
	}
	if mutate != nil {
		mutate(&c)
	}
	if err := s.Contracts.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestContractNoUniquePerTenant(t *testing.T) {
	s := NewMemoryStore()
	seedContract(t, s, "t-1", "c-1", "CN-1", nil)
	seedContract(t, s, "t-2", "c-2", "CN-1", nil)

	c := domain.Contract{ID: "c-3", TenantID: "t-1", ContractNo: "CN-1"}
	if err := s.Contracts.Create(context.Background(), c); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)

	if _, err := s.Contracts.GetByID(ctx, c.ID, "t-2"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("contract leaked across tenants: %v", err)
	}

	a, err := domain.NewAmendment(domain.Amendment{ID: "a-1", ContractID: c.ID, TenantID: "t-1", Type: domain.AmendmentOther, Reason: "typo"}, base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Amendments.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Amendments.GetByID(ctx, a.ID, "t-2"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("amendment leaked across tenants: %v", err)
	}
	if list, _ := s.Amendments.ListByContract(ctx, c.ID, "t-2"); len(list) != 0 {
		t.Errorf("amendment list leaked: %v", list)
	}

	if err := s.Fulfilments.Create(ctx, domain.NewFulfilment("f-1", c, base)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fulfilments.GetByContract(ctx, c.ID, "t-2"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("fulfilment leaked across tenants: %v", err)
	}
}

func TestStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)

	active, err := c.Activate(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Contracts.Update(ctx, active, c.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A second writer still holding version 1.
	cancelled, err := c.Cancel("duplicate booking", "u-2", base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Contracts.Update(ctx, cancelled, c.Version); !errors.IsCode(err, errors.ErrCodeConcurrency) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
	if err := s.Contracts.Delete(ctx, c.ID, c.TenantID, c.Version); !errors.IsCode(err, errors.ErrCodeConcurrency) {
		t.Errorf("delete: expected concurrency conflict, got %v", err)
	}

	got, _ := s.Contracts.GetByID(ctx, c.ID, c.TenantID)
	if got.Status != domain.ContractStatusActive || got.Version != 2 {
		t.Errorf("stored = %s v%d", got.Status, got.Version)
	}

	if err := s.Contracts.Update(ctx, domain.Contract{ID: "nope", TenantID: "t-1"}, 1); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("missing contract: got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)
	a, _ := domain.NewAmendment(domain.Amendment{ID: "a-1", ContractID: c.ID, TenantID: "t-1", Type: domain.AmendmentOther, Reason: "x"}, base)
	if err := s.Amendments.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.Fulfilments.Create(ctx, domain.NewFulfilment("f-1", c, base)); err != nil {
		t.Fatal(err)
	}

	if err := s.Contracts.Delete(ctx, c.ID, c.TenantID, c.Version); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Amendments.GetByID(ctx, a.ID, "t-1"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("amendment survived delete: %v", err)
	}
	if _, err := s.Fulfilments.GetByContract(ctx, c.ID, "t-1"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("fulfilment survived delete: %v", err)
	}
}

func TestListFilterSortPage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 1; i <= 5; i++ {
		seedContract(t, s, "t-1", fmt.Sprintf("c-%d", i), fmt.Sprintf("CN-%02d", i), func(c *domain.Contract) {
			c.CreatedAt = base.Add(time.Duration(i) * time.Hour)
			if i%2 == 0 {
				c.Commodity = domain.CommodityWheat
			}
			c.DeliveryWindow = domain.DeliveryWindow{From: base.AddDate(0, i, 0), To: base.AddDate(0, i+1, 0)}
		})
	}
	seedContract(t, s, "t-2", "other", "CN-99", nil)

	wheat := domain.CommodityWheat
	tests := []struct {
		name   string
		filter ContractFilter
		ids    []string
		total  int64
	}{
		{"all by created", ContractFilter{}, []string{"c-1", "c-2", "c-3", "c-4", "c-5"}, 5},
		{"desc page", ContractFilter{SortDesc: true, Limit: 2, Offset: 1}, []string{"c-4", "c-3"}, 5},
		{"commodity", ContractFilter{Commodity: &wheat}, []string{"c-2", "c-4"}, 2},
		{"search", ContractFilter{Search: "cn-0", SortBy: SortContractNo, Limit: 1}, []string{"c-1"}, 5},
		{"window overlap", ContractFilter{DeliveryFrom: ptrTime(base.AddDate(0, 3, 15)), DeliveryTo: ptrTime(base.AddDate(0, 4, 1))}, []string{"c-3", "c-4"}, 2},
		{"offset past end", ContractFilter{Offset: 10}, []string{}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.Contracts.List(ctx, "t-1", tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := make([]string, 0, len(got))
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.ids) || total != tt.total {
				t.Errorf("ids=%v total=%d, want %v/%d", ids, total, tt.ids, tt.total)
			}
		})
	}
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)
	boom := stderrors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context) error {
		active, _ := c.Activate(base)
		if err := s.Contracts.Update(ctx, active, c.Version); err != nil {
			return err
		}
		if err := s.Audit.Append(ctx, &AuditEntry{ID: "e-1", TenantID: "t-1", EntityID: c.ID, Action: "activate"}); err != nil {
			return err
		}
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("InTx error = %v", err)
	}

	got, _ := s.Contracts.GetByID(ctx, c.ID, c.TenantID)
	if got.Status != domain.ContractStatusDraft || got.Version != 1 {
		t.Errorf("write not rolled back: %s v%d", got.Status, got.Version)
	}
	if entries, _ := s.Audit.GetByEntity(ctx, c.ID, "t-1"); len(entries) != 0 {
		t.Errorf("audit not rolled back: %d entries", len(entries))
	}
}

func TestInTxRollbackKeepsOutsideWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)
	boom := stderrors.New("boom")

	err := s.InTx(ctx, func(txCtx context.Context) error {
		active, _ := c.Activate(base)
		if err := s.Contracts.Update(txCtx, active, c.Version); err != nil {
			return err
		}
		if err := s.Audit.Append(txCtx, &AuditEntry{ID: "e-tx", TenantID: "t-1", EntityID: c.ID, Action: "activate"}); err != nil {
			return err
		}

		// concurrent request committing on its own
		seedContract(t, s, "t-1", "c-2", "CN-2", nil)
		if err := s.Audit.Append(ctx, &AuditEntry{ID: "e-out", TenantID: "t-1", EntityID: "c-2", Action: "create"}); err != nil {
			return err
		}
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("InTx error = %v", err)
	}

	if got, _ := s.Contracts.GetByID(ctx, c.ID, "t-1"); got.Status != domain.ContractStatusDraft {
		t.Errorf("tx write kept: %s", got.Status)
	}
	if _, err := s.Contracts.GetByID(ctx, "c-2", "t-1"); err != nil {
		t.Errorf("outside write lost: %v", err)
	}
	if entries, _ := s.Audit.GetByEntity(ctx, c.ID, "t-1"); len(entries) != 0 {
		t.Errorf("tx audit entries kept: %d", len(entries))
	}
	if entries, _ := s.Audit.GetByEntity(ctx, "c-2", "t-1"); len(entries) != 1 {
		t.Errorf("outside audit entries = %d, want 1", len(entries))
	}
}

func TestInTxRollsBackDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)
	if err := s.Fulfilments.Create(ctx, domain.NewFulfilment("f-1", c, base)); err != nil {
		t.Fatal(err)
	}
	a, err := domain.NewAmendment(domain.Amendment{
		ID: "a-1", ContractID: c.ID, TenantID: "t-1", Type: domain.AmendmentOther, Reason: "typo",
	}, base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Amendments.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	boom := stderrors.New("boom")
	err = s.InTx(ctx, func(ctx context.Context) error {
		if err := s.Contracts.Delete(ctx, c.ID, "t-1", c.Version); err != nil {
			return err
		}
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("InTx error = %v", err)
	}

	if _, err := s.Contracts.GetByID(ctx, c.ID, "t-1"); err != nil {
		t.Errorf("contract not restored: %v", err)
	}
	if _, err := s.Fulfilments.GetByContract(ctx, c.ID, "t-1"); err != nil {
		t.Errorf("fulfilment not restored: %v", err)
	}
	if list, _ := s.Amendments.ListByContract(ctx, c.ID, "t-1"); len(list) != 1 {
		t.Errorf("amendments restored = %d, want 1", len(list))
	}
}

func TestFulfilmentStoredByValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := seedContract(t, s, "t-1", "c-1", "CN-1", nil)
	f, err := domain.NewFulfilment("f-1", c, base).AddScheduleItem("s-1", base.AddDate(0, 0, 3), 10, base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Fulfilments.Create(ctx, f); err != nil {
		t.Fatal(err)
	}
	f.Schedule[0].Status = domain.SlotCancelled

	got, _ := s.Fulfilments.GetByContract(ctx, c.ID, "t-1")
	if got.Schedule[0].Status != domain.SlotPending {
		t.Error("caller mutation reached the store")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
