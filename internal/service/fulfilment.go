package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

// RecordDelivery books a delivery against an active or partially fulfilled
// contract. The ledger is opened on first use. Contract status is derived
// from the ledger in the same transaction.
func (s *ContractService) RecordDelivery(ctx context.Context, req *RecordDeliveryRequest) (*DeliveryResult, error) {
	var (
		res    DeliveryResult
		before domain.Contract
		event  string
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.contracts.GetByID(ctx, req.ContractID, req.TenantID)
		if err != nil {
			return err
		}
		if !c.AcceptsDeliveries() {
			return errors.IllegalTransition(entityContract, string(c.Status), "record delivery")
		}

		f, exists, err := s.loadFulfilment(ctx, c)
		if err != nil {
			return err
		}
		now := s.now()
		event = s.newID()
		next, err := f.AddDelivery(event, req.Qty, domain.DeliveryMeta{
			Delivery: req.Delivery,
			Quality:  req.Quality,
		}, now)
		if err != nil {
			return err
		}
		if err := s.saveFulfilment(ctx, next, exists, f.Version); err != nil {
			return err
		}

		updated, changed := c.ApplyFulfilment(next, now)
		if changed {
			updated.UpdatedBy = req.UserID
			if err := s.contracts.Update(ctx, updated, c.Version); err != nil {
				return err
			}
		}

		before = c
		res = DeliveryResult{Contract: updated, Fulfilment: next, StatusChanged: changed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f := res.Fulfilment
	s.audit(ctx, req.TenantID, req.UserID, entityFulfilment, f.ID, "record_delivery", nil, map[string]any{
		"event_id": event,
		"qty":      req.Qty,
	})
	s.publish(ctx, EventDeliveryRecorded, req.ContractID, req.TenantID, req.UserID, f.Version, map[string]any{
		"event_id":      event,
		"qty":           req.Qty,
		"delivered_qty": f.DeliveredQty,
		"open_qty":      f.OpenQty,
	})
	if res.StatusChanged {
		s.publishStatusChange(ctx, before, res.Contract, req.UserID)
	}

	s.log.Info().
		Str("contract_id", req.ContractID).
		Float64("qty", req.Qty).
		Float64("open_qty", f.OpenQty).
		Msg("Delivery recorded")

	return &res, nil
}

// RecordPricing books a priced quantity.
func (s *ContractService) RecordPricing(ctx context.Context, req *RecordPricingRequest) (domain.Fulfilment, error) {
	var event string
	f, err := s.mutateFulfilment(ctx, req.ContractID, req.TenantID, "record pricing", acceptsLedgerEntries,
		func(f domain.Fulfilment, now time.Time) (domain.Fulfilment, error) {
			event = s.newID()
			return f.AddPricing(event, req.Qty, req.Price, now)
		})
	if err != nil {
		return domain.Fulfilment{}, err
	}

	s.audit(ctx, req.TenantID, req.UserID, entityFulfilment, f.ID, "record_pricing", nil, map[string]any{
		"event_id": event,
		"qty":      req.Qty,
		"price":    req.Price,
	})
	payload := map[string]any{
		"event_id":   event,
		"qty":        req.Qty,
		"price":      req.Price,
		"priced_qty": f.PricedQty,
	}
	if f.AvgPrice != nil {
		payload["avg_price"] = *f.AvgPrice
	}
	s.publish(ctx, EventPricingRecorded, req.ContractID, req.TenantID, req.UserID, f.Version, payload)

	s.log.Info().
		Str("contract_id", req.ContractID).
		Float64("qty", req.Qty).
		Float64("price", req.Price).
		Msg("Pricing recorded")

	return f, nil
}

// RecordInvoicing books an invoiced quantity.
func (s *ContractService) RecordInvoicing(ctx context.Context, req *RecordInvoicingRequest) (domain.Fulfilment, error) {
	var event string
	f, err := s.mutateFulfilment(ctx, req.ContractID, req.TenantID, "record invoicing", acceptsLedgerEntries,
		func(f domain.Fulfilment, now time.Time) (domain.Fulfilment, error) {
			event = s.newID()
			return f.AddInvoicing(event, req.Qty, req.InvoiceRef, now)
		})
	if err != nil {
		return domain.Fulfilment{}, err
	}

	payload := map[string]any{
		"event_id":     event,
		"qty":          req.Qty,
		"invoiced_qty": f.InvoicedQty,
	}
	if req.InvoiceRef != nil {
		payload["invoice_ref"] = *req.InvoiceRef
	}
	s.audit(ctx, req.TenantID, req.UserID, entityFulfilment, f.ID, "record_invoicing", nil, payload)
	s.publish(ctx, EventInvoicingRecorded, req.ContractID, req.TenantID, req.UserID, f.Version, payload)

	s.log.Info().
		Str("contract_id", req.ContractID).
		Float64("qty", req.Qty).
		Msg("Invoicing recorded")

	return f, nil
}

// AddDeliverySchedule adds a planned delivery slot.
func (s *ContractService) AddDeliverySchedule(ctx context.Context, req *AddDeliveryScheduleRequest) (domain.Fulfilment, error) {
	slotID := req.SlotID
	if slotID == "" {
		slotID = s.newID()
	}

	f, err := s.mutateFulfilment(ctx, req.ContractID, req.TenantID, "add delivery schedule", acceptsSchedule,
		func(f domain.Fulfilment, now time.Time) (domain.Fulfilment, error) {
			return f.AddScheduleItem(slotID, req.PlannedDate, req.Qty, now)
		})
	if err != nil {
		return domain.Fulfilment{}, err
	}

	payload := map[string]any{
		"slot_id":      slotID,
		"planned_date": req.PlannedDate,
		"qty":          req.Qty,
	}
	s.audit(ctx, req.TenantID, req.UserID, entityFulfilment, f.ID, "add_schedule", nil, payload)
	s.publish(ctx, EventScheduleAdded, req.ContractID, req.TenantID, req.UserID, f.Version, payload)

	s.log.Info().
		Str("contract_id", req.ContractID).
		Str("slot_id", slotID).
		Time("planned_date", req.PlannedDate).
		Msg("Delivery slot scheduled")

	return f, nil
}

// UpdateDeliveryStatus changes the status of one schedule slot.
func (s *ContractService) UpdateDeliveryStatus(ctx context.Context, req *UpdateDeliveryStatusRequest) (domain.Fulfilment, error) {
	var prev domain.ScheduleSlot
	f, err := s.mutateExistingFulfilment(ctx, req.ContractID, req.TenantID, "update delivery status", acceptsStatusUpdates,
		func(f domain.Fulfilment, now time.Time) (domain.Fulfilment, error) {
			slot, ok := f.Slot(req.SlotID)
			if !ok {
				return domain.Fulfilment{}, errors.NotFound("schedule slot", req.SlotID)
			}
			prev = slot
			return f.UpdateDeliveryStatus(req.SlotID, req.Status, req.ActualDate, now)
		})
	if err != nil {
		return domain.Fulfilment{}, err
	}

	payload := map[string]any{
		"slot_id":     req.SlotID,
		"from_status": prev.Status,
		"to_status":   req.Status,
	}
	if req.ActualDate != nil {
		payload["actual_date"] = *req.ActualDate
	}
	s.audit(ctx, req.TenantID, req.UserID, entityFulfilment, f.ID, "update_schedule", prev, payload)
	s.publish(ctx, EventScheduleUpdated, req.ContractID, req.TenantID, req.UserID, f.Version, payload)

	s.log.Info().
		Str("contract_id", req.ContractID).
		Str("slot_id", req.SlotID).
		Str("status", string(req.Status)).
		Msg("Delivery slot updated")

	return f, nil
}

// GetFulfilment returns the ledger of a contract.
func (s *ContractService) GetFulfilment(ctx context.Context, contractID, tenantID string) (domain.Fulfilment, error) {
	if _, err := s.contracts.GetByID(ctx, contractID, tenantID); err != nil {
		return domain.Fulfilment{}, err
	}
	return s.fulfilments.GetByContract(ctx, contractID, tenantID)
}

// GetContractFulfilmentSummary summarises a contract's ledger. A contract
// without deliveries yields a zero summary over its contracted quantity.
func (s *ContractService) GetContractFulfilmentSummary(ctx context.Context, contractID, tenantID string) (domain.FulfilmentSummary, error) {
	f, err := s.fulfilmentOrEmpty(ctx, contractID, tenantID)
	if err != nil {
		return domain.FulfilmentSummary{}, err
	}
	return f.Summary(), nil
}

// GetDelayedDeliveries lists delayed slots with their delay in days.
func (s *ContractService) GetDelayedDeliveries(ctx context.Context, contractID, tenantID string) ([]domain.DelayedDelivery, error) {
	f, err := s.fulfilmentOrEmpty(ctx, contractID, tenantID)
	if err != nil {
		return nil, err
	}
	return f.DelayedDeliveries(), nil
}

// GetUpcomingDeliveries lists pending slots due within daysAhead days.
// A non-positive daysAhead means the default of seven days.
func (s *ContractService) GetUpcomingDeliveries(ctx context.Context, contractID, tenantID string, daysAhead int) ([]domain.ScheduleSlot, error) {
	if daysAhead <= 0 {
		daysAhead = domain.DefaultUpcomingDays
	}
	f, err := s.fulfilmentOrEmpty(ctx, contractID, tenantID)
	if err != nil {
		return nil, err
	}
	return f.UpcomingDeliveries(s.now(), daysAhead), nil
}

type statusGuard func(domain.ContractStatus) bool

func acceptsLedgerEntries(st domain.ContractStatus) bool {
	switch st {
	case domain.ContractStatusActive, domain.ContractStatusPartiallyFulfilled, domain.ContractStatusFulfilled:
		return true
	}
	return false
}

func acceptsSchedule(st domain.ContractStatus) bool {
	switch st {
	case domain.ContractStatusDraft, domain.ContractStatusActive, domain.ContractStatusPartiallyFulfilled:
		return true
	}
	return false
}

func acceptsStatusUpdates(st domain.ContractStatus) bool {
	return st != domain.ContractStatusCancelled && st != domain.ContractStatusDefaulted
}

// mutateFulfilment applies fn to the contract's ledger, opening it if needed.
func (s *ContractService) mutateFulfilment(
	ctx context.Context,
	contractID, tenantID, action string,
	allowed statusGuard,
	fn func(domain.Fulfilment, time.Time) (domain.Fulfilment, error),
) (domain.Fulfilment, error) {
	return s.withFulfilment(ctx, contractID, tenantID, action, allowed, true, fn)
}

// mutateExistingFulfilment is mutateFulfilment for commands that need a
// ledger to already exist.
func (s *ContractService) mutateExistingFulfilment(
	ctx context.Context,
	contractID, tenantID, action string,
	allowed statusGuard,
	fn func(domain.Fulfilment, time.Time) (domain.Fulfilment, error),
) (domain.Fulfilment, error) {
	return s.withFulfilment(ctx, contractID, tenantID, action, allowed, false, fn)
}

func (s *ContractService) withFulfilment(
	ctx context.Context,
	contractID, tenantID, action string,
	allowed statusGuard,
	open bool,
	fn func(domain.Fulfilment, time.Time) (domain.Fulfilment, error),
) (domain.Fulfilment, error) {
	var out domain.Fulfilment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.contracts.GetByID(ctx, contractID, tenantID)
		if err != nil {
			return err
		}
		if !allowed(c.Status) {
			return errors.IllegalTransition(entityContract, string(c.Status), action)
		}

		var (
			f      domain.Fulfilment
			exists = true
		)
		if open {
			f, exists, err = s.loadFulfilment(ctx, c)
		} else {
			f, err = s.fulfilments.GetByContract(ctx, c.ID, tenantID)
		}
		if err != nil {
			return err
		}

		next, err := fn(f, s.now())
		if err != nil {
			return err
		}
		if err := s.saveFulfilment(ctx, next, exists, f.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// loadFulfilment returns the stored ledger, or a fresh unsaved one when the
// contract has none yet.
func (s *ContractService) loadFulfilment(ctx context.Context, c domain.Contract) (domain.Fulfilment, bool, error) {
	f, err := s.fulfilments.GetByContract(ctx, c.ID, c.TenantID)
	if err == nil {
		return f, true, nil
	}
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return domain.NewFulfilment(s.newID(), c, s.now()), false, nil
	}
	return domain.Fulfilment{}, false, err
}

func (s *ContractService) saveFulfilment(ctx context.Context, f domain.Fulfilment, exists bool, expectedVersion int) error {
	if exists {
		return s.fulfilments.Update(ctx, f, expectedVersion)
	}
	return s.fulfilments.Create(ctx, f)
}

func (s *ContractService) fulfilmentOrEmpty(ctx context.Context, contractID, tenantID string) (domain.Fulfilment, error) {
	c, err := s.contracts.GetByID(ctx, contractID, tenantID)
	if err != nil {
		return domain.Fulfilment{}, err
	}
	f, err := s.fulfilments.GetByContract(ctx, contractID, tenantID)
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return domain.NewFulfilment("", c, s.now()), nil
	}
	return f, err
}
