package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

type AmendmentType string

const (
	AmendmentQtyChange           AmendmentType = "qty_change"
	AmendmentWindowChange        AmendmentType = "window_change"
	AmendmentPriceRuleChange     AmendmentType = "price_rule_change"
	AmendmentCounterpartyChange  AmendmentType = "counterparty_change"
	AmendmentDeliveryTermsChange AmendmentType = "delivery_terms_change"
	AmendmentOther               AmendmentType = "other"
)

type AmendmentStatus string

const (
	AmendmentStatusPending   AmendmentStatus = "pending"
	AmendmentStatusApproved  AmendmentStatus = "approved"
	AmendmentStatusRejected  AmendmentStatus = "rejected"
	AmendmentStatusCancelled AmendmentStatus = "cancelled"
)

// AmendmentStatuses lists every amendment status.
var AmendmentStatuses = []AmendmentStatus{
	AmendmentStatusPending,
	AmendmentStatusApproved,
	AmendmentStatusRejected,
	AmendmentStatusCancelled,
}

// QtyChange merges into Contract.Qty; nil fields are kept.
type QtyChange struct {
	Unit       *string  `json:"unit,omitempty"`
	Contracted *float64 `json:"contracted,omitempty"`
	Tolerance  *float64 `json:"tolerance,omitempty"`
}

// AmendmentChanges is the structural diff. Exactly the field matching the
// amendment type is populated; type other carries none.
type AmendmentChanges struct {
	Qty            *QtyChange      `json:"qty,omitempty"`
	DeliveryWindow *DeliveryWindow `json:"delivery_window,omitempty"`
	Pricing        *Pricing        `json:"pricing,omitempty"`
	CounterpartyID *string         `json:"counterparty_id,omitempty"`
	Delivery       *DeliveryTerms  `json:"delivery,omitempty"`
}

func (ch AmendmentChanges) populated() []string {
	var fields []string
	if ch.Qty != nil {
		fields = append(fields, "qty")
	}
	if ch.DeliveryWindow != nil {
		fields = append(fields, "delivery_window")
	}
	if ch.Pricing != nil {
		fields = append(fields, "pricing")
	}
	if ch.CounterpartyID != nil {
		fields = append(fields, "counterparty_id")
	}
	if ch.Delivery != nil {
		fields = append(fields, "delivery")
	}
	return fields
}

// ValidateFor checks that the diff has the shape required by t.
func (ch AmendmentChanges) ValidateFor(t AmendmentType) error {
	want := map[AmendmentType]string{
		AmendmentQtyChange:           "qty",
		AmendmentWindowChange:        "delivery_window",
		AmendmentPriceRuleChange:     "pricing",
		AmendmentCounterpartyChange:  "counterparty_id",
		AmendmentDeliveryTermsChange: "delivery",
	}
	got := ch.populated()

	if t == AmendmentOther {
		if len(got) != 0 {
			return errors.InvalidInput("changes", "amendments of type other carry no term changes")
		}
		return nil
	}
	field, ok := want[t]
	if !ok {
		return errors.InvalidInput("type", fmt.Sprintf("invalid amendment type %q", t))
	}
	if len(got) != 1 || got[0] != field {
		return errors.InvalidInput("changes", fmt.Sprintf("%s amendments must change exactly %s", t, field))
	}

	switch t {
	case AmendmentQtyChange:
		q := ch.Qty
		if q.Unit == nil && q.Contracted == nil && q.Tolerance == nil {
			return errors.InvalidInput("changes.qty", "at least one quantity field must change")
		}
	case AmendmentWindowChange:
		return ch.DeliveryWindow.Validate()
	case AmendmentPriceRuleChange:
		return ch.Pricing.Validate()
	case AmendmentCounterpartyChange:
		if strings.TrimSpace(*ch.CounterpartyID) == "" {
			return errors.InvalidInput("changes.counterparty_id", "counterparty must not be empty")
		}
	case AmendmentDeliveryTermsChange:
		return ch.Delivery.Validate()
	}
	return nil
}

// Amendment is a proposed change to one contract.
type Amendment struct {
	ID              string           `json:"id"`
	ContractID      string           `json:"contract_id"`
	TenantID        string           `json:"tenant_id"`
	Type            AmendmentType    `json:"type"`
	Reason          string           `json:"reason"`
	Changes         AmendmentChanges `json:"changes"`
	Notes           *string          `json:"notes,omitempty"`
	Status          AmendmentStatus  `json:"status"`
	RequestedBy     string           `json:"requested_by,omitempty"`
	ApprovedBy      *string          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	EffectiveAt     *time.Time       `json:"effective_at,omitempty"`
	RejectedBy      *string          `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time       `json:"rejected_at,omitempty"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewAmendment builds a validated pending amendment at version 1.
func NewAmendment(a Amendment, now time.Time) (Amendment, error) {
	if a.ContractID == "" {
		return Amendment{}, errors.InvalidInput("contract_id", "contract is required")
	}
	if a.TenantID == "" {
		return Amendment{}, errors.InvalidInput("tenant_id", "tenant is required")
	}
	a.Reason = strings.TrimSpace(a.Reason)
	if a.Reason == "" {
		return Amendment{}, errors.InvalidInput("reason", "reason is required")
	}
	if err := a.Changes.ValidateFor(a.Type); err != nil {
		return Amendment{}, err
	}
	a.Status = AmendmentStatusPending
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	return a, nil
}

func (a Amendment) touched(now time.Time) Amendment {
	a.Version++
	a.UpdatedAt = now
	return a
}

// Approve accepts a pending amendment; it takes effect immediately.
func (a Amendment) Approve(by string, now time.Time) (Amendment, error) {
	if a.Status != AmendmentStatusPending {
		return Amendment{}, errors.IllegalTransition("amendment", string(a.Status), "approve")
	}
	a.Status = AmendmentStatusApproved
	a.ApprovedBy = &by
	a.ApprovedAt = &now
	a.EffectiveAt = &now
	return a.touched(now), nil
}

// Reject declines a pending amendment.
func (a Amendment) Reject(by, reason string, now time.Time) (Amendment, error) {
	if a.Status != AmendmentStatusPending {
		return Amendment{}, errors.IllegalTransition("amendment", string(a.Status), "reject")
	}
	a.Status = AmendmentStatusRejected
	a.RejectedBy = &by
	a.RejectedAt = &now
	if r := strings.TrimSpace(reason); r != "" {
		a.RejectionReason = &r
	}
	return a.touched(now), nil
}

// Cancel withdraws a pending amendment. Approved amendments are permanent.
func (a Amendment) Cancel(now time.Time) (Amendment, error) {
	if a.Status != AmendmentStatusPending {
		return Amendment{}, errors.IllegalTransition("amendment", string(a.Status), "cancel")
	}
	a.Status = AmendmentStatusCancelled
	return a.touched(now), nil
}
