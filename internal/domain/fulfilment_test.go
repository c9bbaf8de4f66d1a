package domain

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

func newLedger(t *testing.T, contracted float64) Fulfilment {
	t.Helper()
	c := mustContract(t, ContractStatusActive)
	c.Qty.Contracted = contracted
	return NewFulfilment("f-1", c, t0)
}

func mustDeliver(t *testing.T, f Fulfilment, qty float64, meta DeliveryMeta, at time.Time) Fulfilment {
	t.Helper()
	next, err := f.AddDelivery("d-"+at.Format(time.RFC3339Nano), qty, meta, at)
	if err != nil {
		t.Fatalf("AddDelivery(%v): %v", qty, err)
	}
	return next
}

func TestDeliveriesDriveContractStatus(t *testing.T) {
	c := mustContract(t, ContractStatusActive)
	f := NewFulfilment("f-1", c, t0)

	f = mustDeliver(t, f, 60, DeliveryMeta{}, t0.Add(time.Hour))
	c, changed := c.ApplyFulfilment(f, t0.Add(time.Hour))
	if !changed || c.Status != ContractStatusPartiallyFulfilled {
		t.Fatalf("after 60: status=%s changed=%v", c.Status, changed)
	}

	f = mustDeliver(t, f, 40, DeliveryMeta{}, t0.Add(2*time.Hour))
	c, changed = c.ApplyFulfilment(f, t0.Add(2*time.Hour))
	if !changed || c.Status != ContractStatusFulfilled {
		t.Fatalf("after 100: status=%s changed=%v", c.Status, changed)
	}
	if f.OpenQty != 0 || f.DeliveredQty != 100 {
		t.Errorf("delivered=%v open=%v", f.DeliveredQty, f.OpenQty)
	}
}

func TestQuantityConservation(t *testing.T) {
	f := newLedger(t, 100)
	at := t0
	for _, qty := range []float64{12.5, 30, 0.25, 7, 50.25} {
		at = at.Add(time.Minute)
		f = mustDeliver(t, f, qty, DeliveryMeta{}, at)
		if math.Abs(f.DeliveredQty+f.OpenQty-f.ContractedQty) > QtyEpsilon {
			t.Fatalf("delivered %v + open %v != contracted %v", f.DeliveredQty, f.OpenQty, f.ContractedQty)
		}
	}
}

func TestOverDeliveryGoesNegative(t *testing.T) {
	f := mustDeliver(t, newLedger(t, 100), 120, DeliveryMeta{}, t0)
	if f.OpenQty != -20 {
		t.Errorf("open qty = %v, want -20", f.OpenQty)
	}
	if !f.IsFullyFulfilled() {
		t.Error("over-delivered ledger should count as fully fulfilled")
	}
}

func TestAddDeliveryValidation(t *testing.T) {
	f := newLedger(t, 100)
	tests := []struct {
		name string
		qty  float64
		meta DeliveryMeta
		code errors.ErrorCode
	}{
		{"zero qty", 0, DeliveryMeta{}, errors.ErrCodeValidation},
		{"negative qty", -5, DeliveryMeta{}, errors.ErrCodeValidation},
		{"score too high", 10, DeliveryMeta{Quality: &QualityCheck{Score: 101}}, errors.ErrCodeValidation},
		{"unknown slot", 10, DeliveryMeta{Delivery: &DeliveryData{ScheduleSlotID: "s-x"}}, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.AddDelivery("d-1", tt.qty, tt.meta, t0); !errors.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestTimelineIsAppendOnly(t *testing.T) {
	f := mustDeliver(t, newLedger(t, 100), 10, DeliveryMeta{}, t0.Add(time.Hour))
	if _, err := f.AddPricing("p-1", 10, 100, t0); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected validation error for backdated event, got %v", err)
	}
	if len(f.Timeline) != 1 {
		t.Errorf("timeline len = %d", len(f.Timeline))
	}
}

func TestTransitionsDoNotAliasReceiver(t *testing.T) {
	f, err := newLedger(t, 100).AddScheduleItem("s-1", t0.AddDate(0, 0, 3), 50, t0)
	if err != nil {
		t.Fatal(err)
	}
	next, err := f.UpdateDeliveryStatus("s-1", SlotDelayed, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	if f.Schedule[0].Status != SlotPending {
		t.Error("receiver schedule was modified")
	}
	if next.Schedule[0].Status != SlotDelayed {
		t.Error("status not updated")
	}
}

func TestWeightedAveragePrice(t *testing.T) {
	f := newLedger(t, 100)
	f, err := f.AddPricing("p-1", 10, 100, t0)
	if err != nil {
		t.Fatal(err)
	}
	f, err = f.AddPricing("p-2", 5, 130, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if f.AvgPrice == nil || *f.AvgPrice != 110 {
		t.Errorf("avg price = %v, want 110", f.AvgPrice)
	}
	if f.PricedQty != 15 {
		t.Errorf("priced qty = %v", f.PricedQty)
	}
	if _, err := f.AddPricing("p-3", 5, -1, t0.Add(2*time.Hour)); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("negative price: got %v", err)
	}
}

func TestQualityScoreIsFullHistoryMean(t *testing.T) {
	f := newLedger(t, 100)
	f = mustDeliver(t, f, 10, DeliveryMeta{Quality: &QualityCheck{Score: 80}}, t0)
	f = mustDeliver(t, f, 10, DeliveryMeta{}, t0.Add(time.Hour))
	f = mustDeliver(t, f, 10, DeliveryMeta{Quality: &QualityCheck{Score: 90}}, t0.Add(2*time.Hour))
	if f.QualityScore == nil || *f.QualityScore != 85 {
		t.Errorf("quality score = %v, want 85", f.QualityScore)
	}
}

func TestOnTimeDeliveryRate(t *testing.T) {
	f := newLedger(t, 100)
	planned := t0.AddDate(0, 0, 10)
	var err error
	for _, id := range []string{"s-1", "s-2", "s-3"} {
		if f, err = f.AddScheduleItem(id, planned, 30, t0); err != nil {
			t.Fatal(err)
		}
	}
	if f.OnTimeDeliveryRate != nil {
		t.Fatalf("rate should be unset before any delivered slot, got %v", *f.OnTimeDeliveryRate)
	}

	early := planned.Add(-24 * time.Hour)
	late := planned.Add(48 * time.Hour)
	if f, err = f.UpdateDeliveryStatus("s-1", SlotDelivered, &early, t0); err != nil {
		t.Fatal(err)
	}
	if f, err = f.UpdateDeliveryStatus("s-2", SlotDelivered, &late, t0); err != nil {
		t.Fatal(err)
	}
	if f.OnTimeDeliveryRate == nil || *f.OnTimeDeliveryRate != 50 {
		t.Errorf("on-time rate = %v, want 50", f.OnTimeDeliveryRate)
	}

	if _, err := f.UpdateDeliveryStatus("s-9", SlotDelivered, nil, t0); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown slot: got %v", err)
	}
	if _, err := f.UpdateDeliveryStatus("s-3", "lost", nil, t0); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("bad status: got %v", err)
	}
}

func TestDeliveryLinksScheduleSlot(t *testing.T) {
	planned := t0.AddDate(0, 0, 5)
	f, err := newLedger(t, 100).AddScheduleItem("s-1", planned, 40, t0)
	if err != nil {
		t.Fatal(err)
	}
	deliveredAt := planned.Add(-time.Hour)
	f = mustDeliver(t, f, 40, DeliveryMeta{
		Delivery: &DeliveryData{ScheduleSlotID: "s-1", DeliveredAt: &deliveredAt},
		Quality:  &QualityCheck{Score: 92},
	}, t0.Add(time.Hour))

	slot, ok := f.Slot("s-1")
	if !ok {
		t.Fatal("slot missing")
	}
	if slot.Status != SlotDelivered || slot.ActualDate == nil || !slot.ActualDate.Equal(deliveredAt) {
		t.Errorf("slot = %+v", slot)
	}
	if slot.Quality == nil || slot.Quality.Score != 92 {
		t.Errorf("slot quality = %+v", slot.Quality)
	}
	if f.OnTimeDeliveryRate == nil || *f.OnTimeDeliveryRate != 100 {
		t.Errorf("on-time rate = %v", f.OnTimeDeliveryRate)
	}
}

func TestDeliveryRejectsSettledSlot(t *testing.T) {
	f := newLedger(t, 100)
	var err error
	for _, id := range []string{"s-done", "s-off", "s-late"} {
		if f, err = f.AddScheduleItem(id, t0.AddDate(0, 0, 3), 20, t0); err != nil {
			t.Fatal(err)
		}
	}
	if f, err = f.UpdateDeliveryStatus("s-done", SlotDelivered, nil, t0); err != nil {
		t.Fatal(err)
	}
	if f, err = f.UpdateDeliveryStatus("s-off", SlotCancelled, nil, t0); err != nil {
		t.Fatal(err)
	}
	if f, err = f.UpdateDeliveryStatus("s-late", SlotDelayed, nil, t0); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"s-done", "s-off"} {
		_, err := f.AddDelivery("d-1", 20, DeliveryMeta{Delivery: &DeliveryData{ScheduleSlotID: id}}, t0.Add(time.Hour))
		if !errors.IsCode(err, errors.ErrCodeIllegalTransition) {
			t.Errorf("delivery into %s: %v", id, err)
		}
	}
	if before, _ := f.Slot("s-done"); before.Status != SlotDelivered {
		t.Errorf("settled slot changed: %+v", before)
	}

	f = mustDeliver(t, f, 20, DeliveryMeta{Delivery: &DeliveryData{ScheduleSlotID: "s-late"}}, t0.Add(time.Hour))
	if s, _ := f.Slot("s-late"); s.Status != SlotDelivered {
		t.Errorf("delayed slot = %+v", s)
	}
}

func TestDelayedDeliveries(t *testing.T) {
	planned := t0.AddDate(0, 0, 5)
	f, err := newLedger(t, 100).AddScheduleItem("s-1", planned, 40, t0)
	if err != nil {
		t.Fatal(err)
	}
	if f, err = f.AddScheduleItem("s-2", planned, 40, t0); err != nil {
		t.Fatal(err)
	}
	actual := planned.Add(36 * time.Hour)
	if f, err = f.UpdateDeliveryStatus("s-1", SlotDelayed, &actual, t0); err != nil {
		t.Fatal(err)
	}
	// Delayed without an actual date is not reported.
	if f, err = f.UpdateDeliveryStatus("s-2", SlotDelayed, nil, t0); err != nil {
		t.Fatal(err)
	}

	got := f.DelayedDeliveries()
	if len(got) != 1 || got[0].Slot.ID != "s-1" || got[0].DelayDays != 2 {
		t.Errorf("delayed = %+v", got)
	}
}

func TestUpcomingDeliveries(t *testing.T) {
	f := newLedger(t, 100)
	var err error
	slots := []struct {
		id   string
		days int
	}{{"s-far", 20}, {"s-3", 3}, {"s-1", 1}, {"s-7", 7}, {"s-done", 2}}
	for _, s := range slots {
		if f, err = f.AddScheduleItem(s.id, t0.AddDate(0, 0, s.days), 10, t0); err != nil {
			t.Fatal(err)
		}
	}
	if f, err = f.UpdateDeliveryStatus("s-done", SlotDelivered, nil, t0); err != nil {
		t.Fatal(err)
	}

	got := f.UpcomingDeliveries(t0, DefaultUpcomingDays)
	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	if want := []string{"s-1", "s-3", "s-7"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("upcoming = %v, want %v", ids, want)
	}
}

func TestSummary(t *testing.T) {
	f := newLedger(t, 100)
	empty := f.Summary()
	if empty.Delivered != 0 || empty.Remaining != 100 || empty.FulfilmentRate != 0 || empty.NextDelivery != nil {
		t.Errorf("empty summary = %+v", empty)
	}

	f, err := f.AddScheduleItem("s-1", t0.AddDate(0, 0, 9), 25, t0)
	if err != nil {
		t.Fatal(err)
	}
	if f, err = f.AddScheduleItem("s-2", t0.AddDate(0, 0, 4), 25, t0); err != nil {
		t.Fatal(err)
	}
	f = mustDeliver(t, f, 25, DeliveryMeta{Quality: &QualityCheck{Score: 70}}, t0.Add(time.Hour))

	s := f.Summary()
	if s.TotalContracted != 100 || s.Delivered != 25 || s.Remaining != 75 || s.FulfilmentRate != 25 {
		t.Errorf("summary = %+v", s)
	}
	if s.NextDelivery == nil || !s.NextDelivery.Equal(t0.AddDate(0, 0, 4)) {
		t.Errorf("next delivery = %v", s.NextDelivery)
	}
	if !reflect.DeepEqual(s, f.Summary()) {
		t.Error("summary is not idempotent")
	}
}

func TestSummaryZeroTotal(t *testing.T) {
	f := newLedger(t, 100)
	f.OpenQty = 0
	if rate := f.Summary().FulfilmentRate; rate != 0 {
		t.Errorf("rate = %v, want 0", rate)
	}
}

func TestRebase(t *testing.T) {
	f := mustDeliver(t, newLedger(t, 100), 60, DeliveryMeta{}, t0)
	f = f.Rebase(80, t0.Add(time.Hour))
	if f.ContractedQty != 80 || f.OpenQty != 20 || f.DeliveredQty != 60 {
		t.Errorf("rebased = contracted %v open %v delivered %v", f.ContractedQty, f.OpenQty, f.DeliveredQty)
	}
}

func TestTimelineJSONRoundTrip(t *testing.T) {
	f := newLedger(t, 100)
	f = mustDeliver(t, f, 10, DeliveryMeta{
		Delivery: &DeliveryData{Reference: "BOL-1", Transport: ShipmentTruck},
		Quality:  &QualityCheck{Score: 88, Parameters: map[string]float64{"moisture": 13.5}},
	}, t0)
	f, err := f.AddPricing("p-1", 10, 210, t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if f, err = f.AddInvoicing("i-1", 10, ptr("INV-7"), t0.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	b, err := json.Marshal(f.Timeline)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Timeline
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	kinds := []EventKind{got[0].Kind(), got[1].Kind(), got[2].Kind()}
	if !reflect.DeepEqual(kinds, []EventKind{EventDelivery, EventPricing, EventInvoicing}) {
		t.Errorf("kinds = %v", kinds)
	}
	if inv, ok := got[2].(InvoicingEvent); !ok || inv.InvoiceRef == nil || *inv.InvoiceRef != "INV-7" {
		t.Errorf("invoicing event = %#v", got[2])
	}

	if err := json.Unmarshal([]byte(`[{"kind":"refund","data":{}}]`), &got); err == nil {
		t.Error("expected error for unknown kind")
	}
}
