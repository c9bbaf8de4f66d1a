package service

import (
	"context"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

// CreateAmendment proposes a change to a draft, active or partially
// fulfilled contract.
func (s *ContractService) CreateAmendment(ctx context.Context, req *CreateAmendmentRequest) (domain.Amendment, error) {
	c, err := s.contracts.GetByID(ctx, req.ContractID, req.TenantID)
	if err != nil {
		return domain.Amendment{}, err
	}
	if !c.CanBeAmended() {
		return domain.Amendment{}, errors.IllegalTransition(entityContract, string(c.Status), "amend")
	}

	a, err := domain.NewAmendment(domain.Amendment{
		ID:          s.newID(),
		ContractID:  c.ID,
		TenantID:    c.TenantID,
		Type:        req.Type,
		Reason:      req.Reason,
		Changes:     req.Changes,
		Notes:       req.Notes,
		RequestedBy: req.UserID,
	}, s.now())
	if err != nil {
		return domain.Amendment{}, err
	}
	if a.Type == domain.AmendmentCounterpartyChange {
		if err := s.validateCounterparty(ctx, *a.Changes.CounterpartyID, a.TenantID); err != nil {
			return domain.Amendment{}, err
		}
	}

	if err := s.amendments.Create(ctx, a); err != nil {
		return domain.Amendment{}, err
	}

	s.audit(ctx, a.TenantID, req.UserID, entityAmendment, a.ID, "create", nil, a)
	s.publish(ctx, EventAmendmentCreated, c.ID, c.TenantID, req.UserID, c.Version, map[string]any{
		"amendment_id": a.ID,
		"type":         a.Type,
		"reason":       a.Reason,
	})

	s.log.Info().
		Str("amendment_id", a.ID).
		Str("contract_id", c.ID).
		Str("type", string(a.Type)).
		Msg("Amendment created")

	return a, nil
}

// GetAmendment retrieves an amendment by ID
func (s *ContractService) GetAmendment(ctx context.Context, id, tenantID string) (domain.Amendment, error) {
	return s.amendments.GetByID(ctx, id, tenantID)
}

// ListAmendments returns a contract's amendments, oldest first.
func (s *ContractService) ListAmendments(ctx context.Context, contractID, tenantID string) ([]domain.Amendment, error) {
	if _, err := s.contracts.GetByID(ctx, contractID, tenantID); err != nil {
		return nil, err
	}
	return s.amendments.ListByContract(ctx, contractID, tenantID)
}

// ApproveAmendment approves a pending amendment and applies it to the
// contract in one transaction. A quantity change rebases the fulfilment
// ledger and may move the contract to fulfilled.
func (s *ContractService) ApproveAmendment(ctx context.Context, id, tenantID, userID string) (*ApprovalResult, error) {
	var (
		res    ApprovalResult
		before domain.Contract
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.amendments.GetByID(ctx, id, tenantID)
		if err != nil {
			return err
		}
		c, err := s.contracts.GetByID(ctx, a.ContractID, tenantID)
		if err != nil {
			return err
		}
		if !c.CanBeAmended() {
			return errors.IllegalTransition(entityContract, string(c.Status), "amend")
		}

		now := s.now()
		approved, err := a.Approve(userID, now)
		if err != nil {
			return err
		}
		next, err := c.ApplyAmendment(approved, now)
		if err != nil {
			return err
		}
		next.UpdatedBy = userID

		if next.Qty.Contracted != c.Qty.Contracted {
			f, err := s.fulfilments.GetByContract(ctx, c.ID, tenantID)
			switch {
			case err == nil:
				rebased := f.Rebase(next.Qty.Contracted, now)
				if err := s.fulfilments.Update(ctx, rebased, f.Version); err != nil {
					return err
				}
				res.Fulfilment = &rebased
				next, res.StatusChanged = next.ApplyFulfilment(rebased, now)
			case errors.IsCode(err, errors.ErrCodeNotFound):
			default:
				return err
			}
		}

		if err := s.amendments.Update(ctx, approved, a.Version); err != nil {
			return err
		}
		if err := s.contracts.Update(ctx, next, c.Version); err != nil {
			return err
		}

		res.Amendment = approved
		res.Contract = next
		before = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	a, c := res.Amendment, res.Contract
	s.audit(ctx, tenantID, userID, entityAmendment, a.ID, "approve", nil, a)
	s.audit(ctx, tenantID, userID, entityContract, c.ID, "amend", before, c)
	s.publish(ctx, EventAmendmentApproved, c.ID, tenantID, userID, c.Version, map[string]any{
		"amendment_id": a.ID,
		"type":         a.Type,
	})
	s.publish(ctx, EventContractAmended, c.ID, tenantID, userID, c.Version, map[string]any{
		"amendment_id": a.ID,
		"type":         a.Type,
		"changes":      a.Changes,
	})
	if res.StatusChanged {
		s.publishStatusChange(ctx, before, c, userID)
	}

	s.log.Info().
		Str("amendment_id", a.ID).
		Str("contract_id", c.ID).
		Int("contract_version", c.Version).
		Msg("Amendment approved")

	return &res, nil
}

// RejectAmendment declines a pending amendment. The contract is untouched.
func (s *ContractService) RejectAmendment(ctx context.Context, id, tenantID, userID, reason string) (domain.Amendment, error) {
	a, err := s.amendments.GetByID(ctx, id, tenantID)
	if err != nil {
		return domain.Amendment{}, err
	}
	rejected, err := a.Reject(userID, reason, s.now())
	if err != nil {
		return domain.Amendment{}, err
	}
	if err := s.amendments.Update(ctx, rejected, a.Version); err != nil {
		return domain.Amendment{}, err
	}

	payload := map[string]any{"amendment_id": rejected.ID}
	if rejected.RejectionReason != nil {
		payload["reason"] = *rejected.RejectionReason
	}
	s.audit(ctx, tenantID, userID, entityAmendment, rejected.ID, "reject", a, rejected)
	s.publish(ctx, EventAmendmentRejected, rejected.ContractID, tenantID, userID, rejected.Version, payload)

	s.log.Info().
		Str("amendment_id", rejected.ID).
		Str("contract_id", rejected.ContractID).
		Msg("Amendment rejected")

	return rejected, nil
}

// CancelAmendment withdraws a pending amendment.
func (s *ContractService) CancelAmendment(ctx context.Context, id, tenantID, userID string) (domain.Amendment, error) {
	a, err := s.amendments.GetByID(ctx, id, tenantID)
	if err != nil {
		return domain.Amendment{}, err
	}
	cancelled, err := a.Cancel(s.now())
	if err != nil {
		return domain.Amendment{}, err
	}
	if err := s.amendments.Update(ctx, cancelled, a.Version); err != nil {
		return domain.Amendment{}, err
	}

	s.audit(ctx, tenantID, userID, entityAmendment, cancelled.ID, "cancel", a, cancelled)
	s.publish(ctx, EventAmendmentCancelled, cancelled.ContractID, tenantID, userID, cancelled.Version, map[string]any{
		"amendment_id": cancelled.ID,
	})

	s.log.Info().
		Str("amendment_id", cancelled.ID).
		Msg("Amendment cancelled")

	return cancelled, nil
}

func (s *ContractService) publishStatusChange(ctx context.Context, before, after domain.Contract, userID string) {
	s.publish(ctx, EventContractStatusChanged, after.ID, after.TenantID, userID, after.Version, map[string]any{
		"from_status": before.Status,
		"to_status":   after.Status,
	})
	s.log.Info().
		Str("contract_id", after.ID).
		Str("from_status", string(before.Status)).
		Str("to_status", string(after.Status)).
		Msg("Contract status changed")
}
