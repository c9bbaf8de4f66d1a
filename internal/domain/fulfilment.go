package domain

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

type SlotStatus string

const (
	SlotPending   SlotStatus = "pending"
	SlotDelivered SlotStatus = "delivered"
	SlotDelayed   SlotStatus = "delayed"
	SlotCancelled SlotStatus = "cancelled"
)

func (s SlotStatus) valid() bool {
	switch s {
	case SlotPending, SlotDelivered, SlotDelayed, SlotCancelled:
		return true
	}
	return false
}

// QtyEpsilon absorbs float rounding when deciding whether nothing is left open.
const QtyEpsilon = 1e-9

// DefaultUpcomingDays is the look-ahead used by UpcomingDeliveries callers
// that pass no horizon.
const DefaultUpcomingDays = 7

// ScheduleSlot is one planned delivery.
type ScheduleSlot struct {
	ID          string        `json:"id"`
	PlannedDate time.Time     `json:"planned_date"`
	ActualDate  *time.Time    `json:"actual_date,omitempty"`
	Qty         float64       `json:"qty"`
	Status      SlotStatus    `json:"status"`
	Quality     *QualityCheck `json:"quality,omitempty"`
}

// Fulfilment is the delivery, pricing and invoicing ledger of one contract.
//
// Derived metrics are recomputed from the full history on every relevant
// append. Histories are short (tens of events per contract), so the O(n)
// scan is kept instead of running sums.
type Fulfilment struct {
	ID                 string         `json:"id"`
	ContractID         string         `json:"contract_id"`
	TenantID           string         `json:"tenant_id"`
	ContractedQty      float64        `json:"contracted_qty"`
	DeliveredQty       float64        `json:"delivered_qty"`
	PricedQty          float64        `json:"priced_qty"`
	InvoicedQty        float64        `json:"invoiced_qty"`
	OpenQty            float64        `json:"open_qty"`
	AvgPrice           *float64       `json:"avg_price,omitempty"`
	QualityScore       *float64       `json:"quality_score,omitempty"`
	OnTimeDeliveryRate *float64       `json:"on_time_delivery_rate,omitempty"`
	Schedule           []ScheduleSlot `json:"schedule"`
	Timeline           Timeline       `json:"timeline"`
	Version            int            `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewFulfilment opens an empty ledger for c at version 1.
func NewFulfilment(id string, c Contract, now time.Time) Fulfilment {
	return Fulfilment{
		ID:            id,
		ContractID:    c.ID,
		TenantID:      c.TenantID,
		ContractedQty: c.Qty.Contracted,
		OpenQty:       c.Qty.Contracted,
		Schedule:      []ScheduleSlot{},
		Timeline:      Timeline{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// clone copies the slices so the returned value shares nothing mutable.
func (f Fulfilment) clone() Fulfilment {
	f.Schedule = slices.Clone(f.Schedule)
	f.Timeline = slices.Clone(f.Timeline)
	return f
}

func (f Fulfilment) touched(now time.Time) Fulfilment {
	f.Version++
	f.UpdatedAt = now
	return f
}

func (f Fulfilment) appendEvent(e TimelineEvent) (Fulfilment, error) {
	if n := len(f.Timeline); n > 0 && e.At().Before(f.Timeline[n-1].At()) {
		return Fulfilment{}, errors.InvalidInput("occurred_at", "timeline is append-only; event predates the last entry")
	}
	f.Timeline = append(f.Timeline, e)
	return f, nil
}

func validateQty(field string, qty float64) error {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return errors.InvalidInput(field, "quantity must be positive")
	}
	return nil
}

func validateQuality(q *QualityCheck) error {
	if q != nil && (q.Score < 0 || q.Score > 100 || math.IsNaN(q.Score)) {
		return errors.InvalidInput("quality.score", "score must be between 0 and 100")
	}
	return nil
}

// DeliveryMeta is the optional payload of a delivery.
type DeliveryMeta struct {
	Delivery *DeliveryData
	Quality  *QualityCheck
}

// AddDelivery books a delivered quantity. Over-delivery drives OpenQty
// negative; it is not clamped. When the delivery names a schedule slot the
// slot is marked delivered on the delivery date. Only pending or delayed
// slots accept a delivery.
func (f Fulfilment) AddDelivery(eventID string, qty float64, meta DeliveryMeta, now time.Time) (Fulfilment, error) {
	if err := validateQty("qty", qty); err != nil {
		return Fulfilment{}, err
	}
	if err := validateQuality(meta.Quality); err != nil {
		return Fulfilment{}, err
	}

	f = f.clone()
	next, err := f.appendEvent(DeliveryEvent{
		ID:         eventID,
		OccurredAt: now,
		Qty:        qty,
		Delivery:   meta.Delivery,
		Quality:    meta.Quality,
	})
	if err != nil {
		return Fulfilment{}, err
	}
	f = next
	f.DeliveredQty += qty
	f.OpenQty -= qty

	if d := meta.Delivery; d != nil && d.ScheduleSlotID != "" {
		i := f.slotIndex(d.ScheduleSlotID)
		if i < 0 {
			return Fulfilment{}, errors.NotFound("schedule slot", d.ScheduleSlotID)
		}
		if st := f.Schedule[i].Status; st != SlotPending && st != SlotDelayed {
			return Fulfilment{}, errors.IllegalTransition("schedule slot", string(st), "deliver")
		}
		actual := now
		if d.DeliveredAt != nil {
			actual = *d.DeliveredAt
		}
		f.Schedule[i].Status = SlotDelivered
		f.Schedule[i].ActualDate = &actual
		if meta.Quality != nil {
			f.Schedule[i].Quality = meta.Quality
		}
	}

	if meta.Quality != nil {
		f.QualityScore = f.computeQualityScore()
	}
	f.OnTimeDeliveryRate = f.computeOnTimeRate()
	return f.touched(now), nil
}

// AddPricing books a priced quantity and recomputes the weighted average price.
func (f Fulfilment) AddPricing(eventID string, qty, price float64, now time.Time) (Fulfilment, error) {
	if err := validateQty("qty", qty); err != nil {
		return Fulfilment{}, err
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Fulfilment{}, errors.InvalidInput("price", "price must not be negative")
	}

	f = f.clone()
	next, err := f.appendEvent(PricingEvent{ID: eventID, OccurredAt: now, Qty: qty, Price: price})
	if err != nil {
		return Fulfilment{}, err
	}
	f = next
	f.PricedQty += qty
	f.AvgPrice = f.computeAvgPrice()
	return f.touched(now), nil
}

// AddInvoicing books an invoiced quantity.
func (f Fulfilment) AddInvoicing(eventID string, qty float64, invoiceRef *string, now time.Time) (Fulfilment, error) {
	if err := validateQty("qty", qty); err != nil {
		return Fulfilment{}, err
	}

	f = f.clone()
	next, err := f.appendEvent(InvoicingEvent{ID: eventID, OccurredAt: now, Qty: qty, InvoiceRef: invoiceRef})
	if err != nil {
		return Fulfilment{}, err
	}
	f = next
	f.InvoicedQty += qty
	return f.touched(now), nil
}

// AddScheduleItem appends a pending slot. Slots are kept in insertion order.
func (f Fulfilment) AddScheduleItem(slotID string, plannedDate time.Time, qty float64, now time.Time) (Fulfilment, error) {
	if slotID == "" {
		return Fulfilment{}, errors.InvalidInput("slot_id", "slot id is required")
	}
	if plannedDate.IsZero() {
		return Fulfilment{}, errors.InvalidInput("planned_date", "planned date is required")
	}
	if err := validateQty("qty", qty); err != nil {
		return Fulfilment{}, err
	}
	if f.slotIndex(slotID) >= 0 {
		return Fulfilment{}, errors.New(errors.ErrCodeConflict, fmt.Sprintf("schedule slot %q already exists", slotID))
	}

	f = f.clone()
	f.Schedule = append(f.Schedule, ScheduleSlot{
		ID:          slotID,
		PlannedDate: plannedDate,
		Qty:         qty,
		Status:      SlotPending,
	})
	return f.touched(now), nil
}

// UpdateDeliveryStatus changes one slot, addressed by its id.
func (f Fulfilment) UpdateDeliveryStatus(slotID string, status SlotStatus, actualDate *time.Time, now time.Time) (Fulfilment, error) {
	if !status.valid() {
		return Fulfilment{}, errors.InvalidInput("status", fmt.Sprintf("invalid schedule status %q", status))
	}
	i := f.slotIndex(slotID)
	if i < 0 {
		return Fulfilment{}, errors.NotFound("schedule slot", slotID)
	}

	f = f.clone()
	f.Schedule[i].Status = status
	if actualDate != nil {
		d := *actualDate
		f.Schedule[i].ActualDate = &d
	}
	f.OnTimeDeliveryRate = f.computeOnTimeRate()
	return f.touched(now), nil
}

// Rebase re-anchors the ledger on a new contracted quantity.
func (f Fulfilment) Rebase(contracted float64, now time.Time) Fulfilment {
	f = f.clone()
	f.ContractedQty = contracted
	f.OpenQty = contracted - f.DeliveredQty
	return f.touched(now)
}

func (f Fulfilment) slotIndex(id string) int {
	return slices.IndexFunc(f.Schedule, func(s ScheduleSlot) bool { return s.ID == id })
}

// Slot returns the slot with the given id.
func (f Fulfilment) Slot(id string) (ScheduleSlot, bool) {
	i := f.slotIndex(id)
	if i < 0 {
		return ScheduleSlot{}, false
	}
	return f.Schedule[i], true
}

func (f Fulfilment) computeAvgPrice() *float64 {
	var value, qty float64
	for _, p := range f.Timeline.Pricings() {
		value += p.Price * p.Qty
		qty += p.Qty
	}
	if qty == 0 {
		return nil
	}
	avg := value / qty
	return &avg
}

func (f Fulfilment) computeQualityScore() *float64 {
	var sum float64
	var n int
	for _, d := range f.Timeline.Deliveries() {
		if d.Quality != nil {
			sum += d.Quality.Score
			n++
		}
	}
	if n == 0 {
		return nil
	}
	score := sum / float64(n)
	return &score
}

// computeOnTimeRate is nil when no slot is delivered yet.
func (f Fulfilment) computeOnTimeRate() *float64 {
	var delivered, onTime int
	for _, s := range f.Schedule {
		if s.Status != SlotDelivered {
			continue
		}
		delivered++
		if s.ActualDate != nil && !s.ActualDate.After(s.PlannedDate) {
			onTime++
		}
	}
	if delivered == 0 {
		return nil
	}
	rate := float64(onTime) / float64(delivered) * 100
	return &rate
}

// IsFullyFulfilled reports whether nothing remains open.
func (f Fulfilment) IsFullyFulfilled() bool {
	return f.OpenQty <= QtyEpsilon
}

// DelayedDelivery is a delayed slot with its delay in whole days.
type DelayedDelivery struct {
	Slot      ScheduleSlot `json:"slot"`
	DelayDays int          `json:"delay_days"`
}

// DelayedDeliveries lists delayed slots that have an actual date.
func (f Fulfilment) DelayedDeliveries() []DelayedDelivery {
	out := []DelayedDelivery{}
	for _, s := range f.Schedule {
		if s.Status != SlotDelayed || s.ActualDate == nil || s.PlannedDate.IsZero() {
			continue
		}
		days := math.Ceil(s.ActualDate.Sub(s.PlannedDate).Hours() / 24)
		out = append(out, DelayedDelivery{Slot: s, DelayDays: int(days)})
	}
	return out
}

// UpcomingDeliveries lists pending slots planned up to daysAhead days from
// now, earliest first. Overdue pending slots are included.
func (f Fulfilment) UpcomingDeliveries(now time.Time, daysAhead int) []ScheduleSlot {
	horizon := now.AddDate(0, 0, daysAhead)
	out := []ScheduleSlot{}
	for _, s := range f.Schedule {
		if s.Status == SlotPending && !s.PlannedDate.After(horizon) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b ScheduleSlot) int { return a.PlannedDate.Compare(b.PlannedDate) })
	return out
}

// FulfilmentSummary is the read model of a ledger.
type FulfilmentSummary struct {
	ContractID         string     `json:"contract_id"`
	TotalContracted    float64    `json:"total_contracted"`
	Delivered          float64    `json:"delivered"`
	Remaining          float64    `json:"remaining"`
	FulfilmentRate     float64    `json:"fulfilment_rate"`
	QualityScore       *float64   `json:"quality_score,omitempty"`
	OnTimeDeliveryRate *float64   `json:"on_time_delivery_rate,omitempty"`
	NextDelivery       *time.Time `json:"next_delivery,omitempty"`
}

// Summary derives the read model. It has no side effects.
func (f Fulfilment) Summary() FulfilmentSummary {
	total := f.DeliveredQty + f.OpenQty
	rate := 0.0
	if total != 0 {
		rate = f.DeliveredQty / total * 100
	}

	var next *time.Time
	for _, s := range f.Schedule {
		if s.Status != SlotPending {
			continue
		}
		if next == nil || s.PlannedDate.Before(*next) {
			d := s.PlannedDate
			next = &d
		}
	}

	return FulfilmentSummary{
		ContractID:         f.ContractID,
		TotalContracted:    total,
		Delivered:          f.DeliveredQty,
		Remaining:          f.OpenQty,
		FulfilmentRate:     rate,
		QualityScore:       copyFloat(f.QualityScore),
		OnTimeDeliveryRate: copyFloat(f.OnTimeDeliveryRate),
		NextDelivery:       next,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
