package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func validContract() Contract {
	return Contract{
		ID:             "c-1",
		TenantID:       "t-1",
		ContractNo:     "WH-2026-001",
		Type:           ContractTypeBuy,
		Commodity:      CommodityWheat,
		CounterpartyID: "cp-1",
		Incoterm:       "fob",
		DeliveryWindow: DeliveryWindow{From: t0, To: t0.AddDate(0, 2, 0)},
		Qty:            Quantity{Unit: "mt", Contracted: 100, Tolerance: 5},
		Pricing:        Pricing{Mode: PricingModeFixed, Currency: "usd", Price: ptr(250.0)},
		Delivery:       DeliveryTerms{ShipmentType: ShipmentVessel},
		CreatedBy:      "u-1",
	}
}

func mustContract(t *testing.T, status ContractStatus) Contract {
	t.Helper()
	c, err := NewContract(validContract(), t0)
	if err != nil {
		t.Fatalf("NewContract: %v", err)
	}
	c.Status = status
	return c
}

func TestNewContract(t *testing.T) {
	c, err := NewContract(validContract(), t0)
	if err != nil {
		t.Fatalf("NewContract: %v", err)
	}
	if c.Status != ContractStatusDraft || c.Version != 1 {
		t.Errorf("status=%s version=%d, want draft/1", c.Status, c.Version)
	}
	if c.Incoterm != "FOB" || c.Pricing.Currency != "USD" {
		t.Errorf("incoterm=%s currency=%s, want upper-cased", c.Incoterm, c.Pricing.Currency)
	}
}

func TestNewContractValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Contract)
		field  string
	}{
		{"missing tenant", func(c *Contract) { c.TenantID = "" }, "tenant_id"},
		{"bad type", func(c *Contract) { c.Type = "swap" }, "type"},
		{"bad commodity", func(c *Contract) { c.Commodity = "gold" }, "commodity"},
		{"missing counterparty", func(c *Contract) { c.CounterpartyID = "" }, "counterparty_id"},
		{"bad incoterm", func(c *Contract) { c.Incoterm = "XYZ" }, "incoterm"},
		{"window reversed", func(c *Contract) { c.DeliveryWindow.From, c.DeliveryWindow.To = c.DeliveryWindow.To, c.DeliveryWindow.From }, "delivery_window"},
		{"window empty", func(c *Contract) { c.DeliveryWindow.To = c.DeliveryWindow.From }, "delivery_window"},
		{"zero qty", func(c *Contract) { c.Qty.Contracted = 0 }, "qty.contracted"},
		{"bad unit", func(c *Contract) { c.Qty.Unit = "barrel" }, "qty.unit"},
		{"tolerance too high", func(c *Contract) { c.Qty.Tolerance = 25 }, "qty.tolerance"},
		{"no pricing mode", func(c *Contract) { c.Pricing = Pricing{} }, "pricing.mode"},
		{"fixed without price", func(c *Contract) { c.Pricing.Price = nil }, "pricing.price"},
		{"fixed bad currency", func(c *Contract) { c.Pricing.Currency = "US" }, "pricing.currency"},
		{"basis without month", func(c *Contract) { c.Pricing = Pricing{Mode: PricingModeBasis, Basis: ptr(-0.25)} }, "pricing.futures_month"},
		{"hta without price", func(c *Contract) { c.Pricing = Pricing{Mode: PricingModeHTA, FuturesMonth: "2026-07", Exchange: "CBOT"} }, "pricing.futures_price"},
		{"bad shipment", func(c *Contract) { c.Delivery.ShipmentType = "pipeline" }, "delivery.shipment_type"},
		{"negative storage", func(c *Contract) { c.Delivery.Storage = &StorageTerms{FreeDays: -1} }, "delivery.storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validContract()
			tt.mutate(&c)
			_, err := NewContract(c, t0)
			if !errors.IsCode(err, errors.ErrCodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %s", err, tt.field)
			}
		})
	}
}

func TestDeferredPricingNeedsNoFields(t *testing.T) {
	c := validContract()
	c.Pricing = Pricing{Mode: PricingModeDeferred}
	if _, err := NewContract(c, t0); err != nil {
		t.Fatalf("deferred pricing: %v", err)
	}
}

// Every (status, command) pair: either the documented target status or an
// illegal transition error.
func TestContractTransitions(t *testing.T) {
	reason := "counterparty withdrew"
	commands := map[string]func(Contract) (Contract, error){
		"activate": func(c Contract) (Contract, error) { return c.Activate(t0) },
		"cancel":   func(c Contract) (Contract, error) { return c.Cancel(reason, "u-2", t0) },
		"default":  func(c Contract) (Contract, error) { return c.MarkDefaulted(t0) },
		"update":   func(c Contract) (Contract, error) { return c.Update(ContractPatch{Notes: ptr("x")}, "u-2", t0) },
	}
	want := map[ContractStatus]map[string]ContractStatus{
		ContractStatusDraft: {
			"activate": ContractStatusActive,
			"cancel":   ContractStatusCancelled,
			"update":   ContractStatusDraft,
		},
		ContractStatusActive: {
			"cancel":  ContractStatusCancelled,
			"default": ContractStatusDefaulted,
		},
		ContractStatusPartiallyFulfilled: {
			"cancel":  ContractStatusCancelled,
			"default": ContractStatusDefaulted,
		},
		ContractStatusFulfilled: {},
		ContractStatusCancelled: {},
		ContractStatusDefaulted: {},
	}

	for _, from := range ContractStatuses {
		for name, cmd := range commands {
			t.Run(string(from)+"/"+name, func(t *testing.T) {
				c := mustContract(t, from)
				got, err := cmd(c)
				target, allowed := want[from][name]
				if !allowed {
					if !errors.IsCode(err, errors.ErrCodeIllegalTransition) {
						t.Fatalf("expected illegal transition, got %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Status != target {
					t.Errorf("status = %s, want %s", got.Status, target)
				}
				if got.Version != c.Version+1 {
					t.Errorf("version = %d, want %d", got.Version, c.Version+1)
				}
				if c.Status != from {
					t.Error("receiver was modified")
				}
			})
		}
	}
}

func TestCancelReasonLength(t *testing.T) {
	c := mustContract(t, ContractStatusActive)

	_, err := c.Cancel("123456789", "u-1", t0)
	if !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Fatalf("9 chars: expected validation error, got %v", err)
	}
	got, err := c.Cancel("1234567890", "u-1", t0)
	if err != nil {
		t.Fatalf("10 chars: %v", err)
	}
	if got.CancelReason == nil || *got.CancelReason != "1234567890" {
		t.Errorf("cancel reason = %v", got.CancelReason)
	}
	if got.CancelledAt == nil || !got.CancelledAt.Equal(t0) {
		t.Errorf("cancelled at = %v", got.CancelledAt)
	}
}

func TestApplyFulfilment(t *testing.T) {
	tests := []struct {
		name      string
		status    ContractStatus
		delivered float64
		want      ContractStatus
		changed   bool
	}{
		{"active first delivery", ContractStatusActive, 60, ContractStatusPartiallyFulfilled, true},
		{"active full delivery", ContractStatusActive, 100, ContractStatusFulfilled, true},
		{"partial completes", ContractStatusPartiallyFulfilled, 100, ContractStatusFulfilled, true},
		{"partial stays", ContractStatusPartiallyFulfilled, 70, ContractStatusPartiallyFulfilled, false},
		{"over delivery fulfils", ContractStatusActive, 120, ContractStatusFulfilled, true},
		{"draft unaffected", ContractStatusDraft, 100, ContractStatusDraft, false},
		{"cancelled unaffected", ContractStatusCancelled, 100, ContractStatusCancelled, false},
		{"active nothing delivered", ContractStatusActive, 0, ContractStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustContract(t, tt.status)
			f := NewFulfilment("f-1", c, t0)
			f.DeliveredQty = tt.delivered
			f.OpenQty = c.Qty.Contracted - tt.delivered

			got, changed := c.ApplyFulfilment(f, t0)
			if got.Status != tt.want || changed != tt.changed {
				t.Errorf("status=%s changed=%v, want %s/%v", got.Status, changed, tt.want, tt.changed)
			}
			if !changed && got.Version != c.Version {
				t.Error("unchanged contract must keep its version")
			}
		})
	}
}

func TestUpdateDraft(t *testing.T) {
	c := mustContract(t, ContractStatusDraft)
	got, err := c.Update(ContractPatch{Qty: &Quantity{Unit: "bu", Contracted: 5000}, Incoterm: ptr("cif")}, "u-2", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Qty.Contracted != 5000 || got.Incoterm != "CIF" || got.UpdatedBy != "u-2" {
		t.Errorf("update not applied: %+v", got)
	}

	if _, err := c.Update(ContractPatch{Qty: &Quantity{Unit: "bu", Contracted: -1}}, "u-2", t0); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestIsExpired(t *testing.T) {
	c := mustContract(t, ContractStatusFulfilled)
	if c.IsExpired(c.DeliveryWindow.To) {
		t.Error("window end itself is not expired")
	}
	if !c.IsExpired(c.DeliveryWindow.To.Add(time.Second)) {
		t.Error("expected expired after window end, regardless of status")
	}
}
