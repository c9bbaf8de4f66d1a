// Package domain holds the trade contract entities and the fulfilment
// aggregate. Every transition is a value method that returns a new value;
// the receiver is never modified.
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

type ContractType string

const (
	ContractTypeBuy  ContractType = "buy"
	ContractTypeSell ContractType = "sell"
)

type Commodity string

const (
	CommodityWheat    Commodity = "wheat"
	CommodityCorn     Commodity = "corn"
	CommoditySoybeans Commodity = "soybeans"
	CommodityBarley   Commodity = "barley"
	CommodityCanola   Commodity = "canola"
	CommoditySorghum  Commodity = "sorghum"
	CommodityOats     Commodity = "oats"
	CommodityRice     Commodity = "rice"
	CommoditySugar    Commodity = "sugar"
	CommodityCoffee   Commodity = "coffee"
	CommodityCotton   Commodity = "cotton"
)

var commodities = map[Commodity]bool{
	CommodityWheat: true, CommodityCorn: true, CommoditySoybeans: true, CommodityBarley: true,
	CommodityCanola: true, CommoditySorghum: true, CommodityOats: true, CommodityRice: true,
	CommoditySugar: true, CommodityCoffee: true, CommodityCotton: true,
}

// Incoterms 2020.
var incoterms = map[string]bool{
	"EXW": true, "FCA": true, "CPT": true, "CIP": true, "DAP": true, "DPU": true,
	"DDP": true, "FAS": true, "FOB": true, "CFR": true, "CIF": true,
}

var qtyUnits = map[string]bool{"mt": true, "kg": true, "bu": true, "lb": true, "st": true}

type ContractStatus string

const (
	ContractStatusDraft              ContractStatus = "draft"
	ContractStatusActive             ContractStatus = "active"
	ContractStatusPartiallyFulfilled ContractStatus = "partially_fulfilled"
	ContractStatusFulfilled          ContractStatus = "fulfilled"
	ContractStatusCancelled          ContractStatus = "cancelled"
	ContractStatusDefaulted          ContractStatus = "defaulted"
)

// ContractStatuses lists every status, in lifecycle order.
var ContractStatuses = []ContractStatus{
	ContractStatusDraft,
	ContractStatusActive,
	ContractStatusPartiallyFulfilled,
	ContractStatusFulfilled,
	ContractStatusCancelled,
	ContractStatusDefaulted,
}

// IsTerminal reports whether no further transitions leave s.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusFulfilled, ContractStatusCancelled, ContractStatusDefaulted:
		return true
	}
	return false
}

// MinReasonLength is the minimum length of a cancel or delete reason.
const MinReasonLength = 10

// DeliveryWindow is the half-open period in which goods must be delivered.
type DeliveryWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Quantity is the contracted volume. Tolerance is a percentage.
type Quantity struct {
	Unit       string  `json:"unit"`
	Contracted float64 `json:"contracted"`
	Tolerance  float64 `json:"tolerance"`
}

type PricingMode string

const (
	PricingModeFixed    PricingMode = "fixed"
	PricingModeBasis    PricingMode = "basis"
	PricingModeHTA      PricingMode = "hta"
	PricingModeDeferred PricingMode = "deferred"
)

// Pricing holds the price rule. Which fields are required depends on Mode.
type Pricing struct {
	Mode         PricingMode `json:"mode"`
	Currency     string      `json:"currency,omitempty"`
	Price        *float64    `json:"price,omitempty"`
	Basis        *float64    `json:"basis,omitempty"`
	FuturesPrice *float64    `json:"futures_price,omitempty"`
	FuturesMonth string      `json:"futures_month,omitempty"`
	Exchange     string      `json:"exchange,omitempty"`
}

type ShipmentType string

const (
	ShipmentTruck     ShipmentType = "truck"
	ShipmentRail      ShipmentType = "rail"
	ShipmentVessel    ShipmentType = "vessel"
	ShipmentContainer ShipmentType = "container"
	ShipmentBarge     ShipmentType = "barge"
)

// StorageTerms describe storage at the delivery location.
type StorageTerms struct {
	Location   string  `json:"location,omitempty"`
	FreeDays   int     `json:"free_days"`
	RatePerDay float64 `json:"rate_per_day"`
}

// DeliveryTerms describe how goods move.
type DeliveryTerms struct {
	ShipmentType ShipmentType  `json:"shipment_type"`
	Storage      *StorageTerms `json:"storage,omitempty"`
}

// Contract is a commodity trade contract.
type Contract struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	ContractNo     string         `json:"contract_no"`
	Type           ContractType   `json:"type"`
	Commodity      Commodity      `json:"commodity"`
	CounterpartyID string         `json:"counterparty_id"`
	Incoterm       string         `json:"incoterm"`
	DeliveryWindow DeliveryWindow `json:"delivery_window"`
	Qty            Quantity       `json:"qty"`
	Pricing        Pricing        `json:"pricing"`
	Delivery       DeliveryTerms  `json:"delivery"`
	Notes          *string        `json:"notes,omitempty"`
	Status         ContractStatus `json:"status"`
	CancelReason   *string        `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
	CancelledBy    *string        `json:"cancelled_by,omitempty"`
	Version        int            `json:"version"`
	CreatedBy      string         `json:"created_by,omitempty"`
	UpdatedBy      string         `json:"updated_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewContract builds a validated draft at version 1.
func NewContract(c Contract, now time.Time) (Contract, error) {
	c.Status = ContractStatusDraft
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Incoterm = strings.ToUpper(strings.TrimSpace(c.Incoterm))
	if c.Pricing.Currency != "" {
		c.Pricing.Currency = strings.ToUpper(c.Pricing.Currency)
	}
	if err := c.Validate(); err != nil {
		return Contract{}, err
	}
	return c, nil
}

// Validate checks the trade terms.
func (c Contract) Validate() error {
	if c.TenantID == "" {
		return errors.InvalidInput("tenant_id", "tenant is required")
	}
	switch c.Type {
	case ContractTypeBuy, ContractTypeSell:
	default:
		return errors.InvalidInput("type", fmt.Sprintf("invalid contract type %q", c.Type))
	}
	if !commodities[c.Commodity] {
		return errors.InvalidInput("commodity", fmt.Sprintf("invalid commodity %q", c.Commodity))
	}
	if c.CounterpartyID == "" {
		return errors.InvalidInput("counterparty_id", "counterparty is required")
	}
	if !incoterms[c.Incoterm] {
		return errors.InvalidInput("incoterm", fmt.Sprintf("invalid incoterm %q", c.Incoterm))
	}
	if err := c.DeliveryWindow.Validate(); err != nil {
		return err
	}
	if err := c.Qty.Validate(); err != nil {
		return err
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	return c.Delivery.Validate()
}

func (w DeliveryWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return errors.InvalidInput("delivery_window", "from and to are required")
	}
	if !w.From.Before(w.To) {
		return errors.InvalidInput("delivery_window", "from must be before to")
	}
	return nil
}

func (q Quantity) Validate() error {
	if !qtyUnits[q.Unit] {
		return errors.InvalidInput("qty.unit", fmt.Sprintf("invalid unit %q", q.Unit))
	}
	if q.Contracted <= 0 {
		return errors.InvalidInput("qty.contracted", "contracted quantity must be positive")
	}
	if q.Tolerance < 0 || q.Tolerance > 20 {
		return errors.InvalidInput("qty.tolerance", "tolerance must be between 0 and 20 percent")
	}
	return nil
}

func (p Pricing) Validate() error {
	switch p.Mode {
	case "":
		return errors.InvalidInput("pricing.mode", "pricing mode is required")
	case PricingModeFixed:
		if p.Price == nil || *p.Price <= 0 {
			return errors.InvalidInput("pricing.price", "fixed pricing requires a positive price")
		}
		if len(p.Currency) != 3 {
			return errors.InvalidInput("pricing.currency", "currency must be 3-letter ISO code")
		}
	case PricingModeBasis:
		if p.Basis == nil {
			return errors.InvalidInput("pricing.basis", "basis pricing requires a basis")
		}
		if p.FuturesMonth == "" || p.Exchange == "" {
			return errors.InvalidInput("pricing.futures_month", "basis pricing requires futures month and exchange")
		}
	case PricingModeHTA:
		if p.FuturesPrice == nil || *p.FuturesPrice <= 0 {
			return errors.InvalidInput("pricing.futures_price", "hedge-to-arrive requires a positive futures price")
		}
		if p.FuturesMonth == "" || p.Exchange == "" {
			return errors.InvalidInput("pricing.futures_month", "hedge-to-arrive requires futures month and exchange")
		}
	case PricingModeDeferred:
	default:
		return errors.InvalidInput("pricing.mode", fmt.Sprintf("invalid pricing mode %q", p.Mode))
	}
	return nil
}

func (d DeliveryTerms) Validate() error {
	switch d.ShipmentType {
	case ShipmentTruck, ShipmentRail, ShipmentVessel, ShipmentContainer, ShipmentBarge:
	default:
		return errors.InvalidInput("delivery.shipment_type", fmt.Sprintf("invalid shipment type %q", d.ShipmentType))
	}
	if d.Storage != nil && (d.Storage.FreeDays < 0 || d.Storage.RatePerDay < 0) {
		return errors.InvalidInput("delivery.storage", "storage free days and rate must not be negative")
	}
	return nil
}

// ValidateReason enforces the minimum reason length for cancel and delete.
func ValidateReason(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinReasonLength {
		return errors.InvalidInput("reason", fmt.Sprintf("reason must be at least %d characters", MinReasonLength))
	}
	return nil
}

func (c Contract) touched(now time.Time) Contract {
	c.Version++
	c.UpdatedAt = now
	return c
}

// Activate moves a draft contract to active.
func (c Contract) Activate(now time.Time) (Contract, error) {
	if c.Status != ContractStatusDraft {
		return Contract{}, errors.IllegalTransition("contract", string(c.Status), "activate")
	}
	c.Status = ContractStatusActive
	return c.touched(now), nil
}

// CanBeCancelled reports whether Cancel is allowed from the current status.
func (c Contract) CanBeCancelled() bool {
	return !c.Status.IsTerminal()
}

// Cancel moves a non-terminal contract to cancelled.
func (c Contract) Cancel(reason, by string, now time.Time) (Contract, error) {
	if !c.CanBeCancelled() {
		return Contract{}, errors.IllegalTransition("contract", string(c.Status), "cancel")
	}
	if err := ValidateReason(reason); err != nil {
		return Contract{}, err
	}
	reason = strings.TrimSpace(reason)
	c.Status = ContractStatusCancelled
	c.CancelReason = &reason
	c.CancelledAt = &now
	c.CancelledBy = &by
	c.UpdatedBy = by
	return c.touched(now), nil
}

// MarkDefaulted records a counterparty default. No command in this service
// triggers it; it exists so the status is reachable by external processes.
func (c Contract) MarkDefaulted(now time.Time) (Contract, error) {
	switch c.Status {
	case ContractStatusActive, ContractStatusPartiallyFulfilled:
	default:
		return Contract{}, errors.IllegalTransition("contract", string(c.Status), "default")
	}
	c.Status = ContractStatusDefaulted
	return c.touched(now), nil
}

// CanBeAmended reports whether amendments may be created or applied.
func (c Contract) CanBeAmended() bool {
	switch c.Status {
	case ContractStatusDraft, ContractStatusActive, ContractStatusPartiallyFulfilled:
		return true
	}
	return false
}

// IsExpired reports whether the delivery window has closed, regardless of status.
func (c Contract) IsExpired(now time.Time) bool {
	return now.After(c.DeliveryWindow.To)
}

// AcceptsDeliveries reports whether deliveries may be recorded.
func (c Contract) AcceptsDeliveries() bool {
	return c.Status == ContractStatusActive || c.Status == ContractStatusPartiallyFulfilled
}

// ApplyFulfilment derives the status from the fulfilment ledger. The second
// return value reports whether the status changed; an unchanged contract is
// returned as is, without a version bump.
func (c Contract) ApplyFulfilment(f Fulfilment, now time.Time) (Contract, bool) {
	next := c.Status
	switch {
	case f.IsFullyFulfilled() && (c.Status == ContractStatusActive || c.Status == ContractStatusPartiallyFulfilled):
		next = ContractStatusFulfilled
	case c.Status == ContractStatusActive && f.DeliveredQty > 0:
		next = ContractStatusPartiallyFulfilled
	}
	if next == c.Status {
		return c, false
	}
	c.Status = next
	return c.touched(now), true
}

// ContractPatch carries the editable terms of a draft. Nil fields are kept.
type ContractPatch struct {
	ContractNo     *string         `json:"contract_no,omitempty"`
	Commodity      *Commodity      `json:"commodity,omitempty"`
	CounterpartyID *string         `json:"counterparty_id,omitempty"`
	Incoterm       *string         `json:"incoterm,omitempty"`
	DeliveryWindow *DeliveryWindow `json:"delivery_window,omitempty"`
	Qty            *Quantity       `json:"qty,omitempty"`
	Pricing        *Pricing        `json:"pricing,omitempty"`
	Delivery       *DeliveryTerms  `json:"delivery,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// Update applies a patch to a draft contract. Active contracts change only
// through approved amendments.
func (c Contract) Update(p ContractPatch, by string, now time.Time) (Contract, error) {
	if c.Status != ContractStatusDraft {
		return Contract{}, errors.IllegalTransition("contract", string(c.Status), "update")
	}
	if p.ContractNo != nil {
		c.ContractNo = strings.TrimSpace(*p.ContractNo)
		if c.ContractNo == "" {
			return Contract{}, errors.InvalidInput("contract_no", "contract number must not be empty")
		}
	}
	if p.Commodity != nil {
		c.Commodity = *p.Commodity
	}
	if p.CounterpartyID != nil {
		c.CounterpartyID = *p.CounterpartyID
	}
	if p.Incoterm != nil {
		c.Incoterm = strings.ToUpper(strings.TrimSpace(*p.Incoterm))
	}
	if p.DeliveryWindow != nil {
		c.DeliveryWindow = *p.DeliveryWindow
	}
	if p.Qty != nil {
		c.Qty = *p.Qty
	}
	if p.Pricing != nil {
		c.Pricing = *p.Pricing
		c.Pricing.Currency = strings.ToUpper(c.Pricing.Currency)
	}
	if p.Delivery != nil {
		c.Delivery = *p.Delivery
	}
	if p.Notes != nil {
		c.Notes = p.Notes
	}
	if err := c.Validate(); err != nil {
		return Contract{}, err
	}
	c.UpdatedBy = by
	return c.touched(now), nil
}

// ApplyAmendment applies approved changes to the contract terms and bumps the
// version. Amendments of type other change no terms.
func (c Contract) ApplyAmendment(a Amendment, now time.Time) (Contract, error) {
	if !c.CanBeAmended() {
		return Contract{}, errors.IllegalTransition("contract", string(c.Status), "amend")
	}
	if a.ContractID != c.ID || a.TenantID != c.TenantID {
		return Contract{}, errors.InvalidInput("amendment", "amendment belongs to a different contract")
	}
	if a.Status != AmendmentStatusApproved {
		return Contract{}, errors.IllegalTransition("amendment", string(a.Status), "apply")
	}
	if err := a.Changes.ValidateFor(a.Type); err != nil {
		return Contract{}, err
	}

	ch := a.Changes
	switch a.Type {
	case AmendmentQtyChange:
		if ch.Qty.Unit != nil {
			c.Qty.Unit = *ch.Qty.Unit
		}
		if ch.Qty.Contracted != nil {
			c.Qty.Contracted = *ch.Qty.Contracted
		}
		if ch.Qty.Tolerance != nil {
			c.Qty.Tolerance = *ch.Qty.Tolerance
		}
	case AmendmentWindowChange:
		c.DeliveryWindow = *ch.DeliveryWindow
	case AmendmentPriceRuleChange:
		c.Pricing = *ch.Pricing
		c.Pricing.Currency = strings.ToUpper(c.Pricing.Currency)
	case AmendmentCounterpartyChange:
		c.CounterpartyID = *ch.CounterpartyID
	case AmendmentDeliveryTermsChange:
		c.Delivery = *ch.Delivery
	case AmendmentOther:
	}

	if err := c.Validate(); err != nil {
		return Contract{}, err
	}
	if a.ApprovedBy != nil {
		c.UpdatedBy = *a.ApprovedBy
	}
	return c.touched(now), nil
}
