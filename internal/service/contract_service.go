package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pesio-ai/be-trade-contracts/internal/client"
	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/internal/repository"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
	"github.com/pesio-ai/be-trade-contracts/pkg/logger"
)

// Event types published by ContractService.
const (
	EventContractCreated        = "contract.created"
	EventContractUpdated        = "contract.updated"
	EventContractActivated      = "contract.activated"
	EventContractCancelled      = "contract.cancelled"
	EventContractDeleted        = "contract.deleted"
	EventContractAmended        = "contract.amended"
	EventContractStatusChanged  = "contract.status_changed"
	EventContractDocumentIssued = "contract.document_issued"
	EventAmendmentCreated       = "amendment.created"
	EventAmendmentApproved      = "amendment.approved"
	EventAmendmentRejected      = "amendment.rejected"
	EventAmendmentCancelled     = "amendment.cancelled"
	EventDeliveryRecorded       = "fulfilment.delivery_recorded"
	EventPricingRecorded        = "fulfilment.pricing_recorded"
	EventInvoicingRecorded      = "fulfilment.invoicing_recorded"
	EventScheduleAdded          = "fulfilment.schedule_added"
	EventScheduleUpdated        = "fulfilment.schedule_updated"
)

const (
	eventSource = "be-trade-contracts"

	entityContract   = "contract"
	entityAmendment  = "amendment"
	entityFulfilment = "fulfilment"

	defaultPageSize = 50
	maxPageSize     = 100
)

var sortFields = map[string]repository.SortField{
	"created_at":    repository.SortCreatedAt,
	"updated_at":    repository.SortUpdatedAt,
	"contract_no":   repository.SortContractNo,
	"delivery_from": repository.SortDeliveryFrom,
}

// ContractService is the lifecycle orchestrator. It enforces the invariants
// that span contracts, amendments and fulfilments; single-entity rules live
// in the domain package.
type ContractService struct {
	contracts      ContractRepository
	amendments     AmendmentRepository
	fulfilments    FulfilmentRepository
	tx             Transactor
	counterparties client.CounterpartiesClientInterface
	events         client.EventPublisherInterface
	auditLog       AuditLogger
	documents      client.DocumentsClientInterface
	log            *logger.Logger
	now            func() time.Time
	newID          func() string
}

// Option configures optional collaborators of a ContractService.
type Option func(*ContractService)

// WithEventPublisher enables event publishing.
func WithEventPublisher(p client.EventPublisherInterface) Option {
	return func(s *ContractService) { s.events = p }
}

// WithAuditLogger enables audit entries for mutating commands.
func WithAuditLogger(a AuditLogger) Option {
	return func(s *ContractService) { s.auditLog = a }
}

// WithDocuments enables IssueContractDocument.
func WithDocuments(d client.DocumentsClientInterface) Option {
	return func(s *ContractService) { s.documents = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ContractService) { s.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *ContractService) { s.newID = newID }
}

// NewContractService creates a new contract service
func NewContractService(
	contracts ContractRepository,
	amendments AmendmentRepository,
	fulfilments FulfilmentRepository,
	tx Transactor,
	counterparties client.CounterpartiesClientInterface,
	log *logger.Logger,
	opts ...Option,
) *ContractService {
	s := &ContractService{
		contracts:      contracts,
		amendments:     amendments,
		fulfilments:    fulfilments,
		tx:             tx,
		counterparties: counterparties,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateContract validates and persists a new draft contract.
func (s *ContractService) CreateContract(ctx context.Context, req *CreateContractRequest) (domain.Contract, error) {
	now := s.now()

	contractNo := strings.TrimSpace(req.ContractNo)
	if contractNo == "" {
		contractNo = s.generateContractNo(now)
	}

	c, err := domain.NewContract(domain.Contract{
		ID:             s.newID(),
		TenantID:       req.TenantID,
		ContractNo:     contractNo,
		Type:           req.Type,
		Commodity:      req.Commodity,
		CounterpartyID: req.CounterpartyID,
		Incoterm:       req.Incoterm,
		DeliveryWindow: req.DeliveryWindow,
		Qty:            req.Qty,
		Pricing:        req.Pricing,
		Delivery:       req.Delivery,
		Notes:          req.Notes,
		CreatedBy:      req.UserID,
		UpdatedBy:      req.UserID,
	}, now)
	if err != nil {
		return domain.Contract{}, err
	}

	if err := s.validateCounterparty(ctx, c.CounterpartyID, c.TenantID); err != nil {
		return domain.Contract{}, err
	}

	if err := s.contracts.Create(ctx, c); err != nil {
		return domain.Contract{}, err
	}

	s.audit(ctx, c.TenantID, req.UserID, entityContract, c.ID, "create", nil, c)
	s.publish(ctx, EventContractCreated, c.ID, c.TenantID, req.UserID, c.Version, map[string]any{
		"contract_no":     c.ContractNo,
		"type":            c.Type,
		"commodity":       c.Commodity,
		"counterparty_id": c.CounterpartyID,
		"qty":             c.Qty.Contracted,
		"unit":            c.Qty.Unit,
	})

	s.log.Info().
		Str("contract_id", c.ID).
		Str("tenant_id", c.TenantID).
		Str("contract_no", c.ContractNo).
		Msg("Contract created")

	return c, nil
}

// GetContract retrieves a contract by ID
func (s *ContractService) GetContract(ctx context.Context, id, tenantID string) (domain.Contract, error) {
	return s.contracts.GetByID(ctx, id, tenantID)
}

// GetContracts lists a tenant's contracts. Page is 1-based; PageSize
// defaults to 50 and may not exceed 100.
func (s *ContractService) GetContracts(ctx context.Context, req *ListContractsRequest) (*ContractPage, error) {
	if req.TenantID == "" {
		return nil, errors.InvalidInput("tenant_id", "tenant is required")
	}

	page := req.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, errors.InvalidInput("page", "page must be at least 1")
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return nil, errors.InvalidInput("page_size", fmt.Sprintf("page size must be between 1 and %d", maxPageSize))
	}

	sortBy := repository.SortCreatedAt
	if req.SortBy != "" {
		f, ok := sortFields[req.SortBy]
		if !ok {
			return nil, errors.InvalidInput("sort_by", fmt.Sprintf("cannot sort by %q", req.SortBy))
		}
		sortBy = f
	}
	if req.DeliveryFrom != nil && req.DeliveryTo != nil && req.DeliveryTo.Before(*req.DeliveryFrom) {
		return nil, errors.InvalidInput("delivery_to", "delivery_to must not be before delivery_from")
	}

	contracts, total, err := s.contracts.List(ctx, req.TenantID, repository.ContractFilter{
		Statuses:       req.Statuses,
		Type:           req.Type,
		Commodity:      req.Commodity,
		CounterpartyID: req.CounterpartyID,
		Search:         strings.TrimSpace(req.Search),
		DeliveryFrom:   req.DeliveryFrom,
		DeliveryTo:     req.DeliveryTo,
		SortBy:         sortBy,
		SortDesc:       req.SortDesc,
		Limit:          pageSize,
		Offset:         (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &ContractPage{
		Contracts:  contracts,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// UpdateContract edits the terms of a draft contract. A change to the
// contracted quantity rebases a ledger opened by an early delivery schedule.
func (s *ContractService) UpdateContract(ctx context.Context, req *UpdateContractRequest) (domain.Contract, error) {
	var cur, next domain.Contract

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		cur, err = s.contracts.GetByID(ctx, req.ID, req.TenantID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != cur.Version {
			return errors.ConcurrencyConflict(entityContract, cur.ID, *req.ExpectedVersion)
		}

		now := s.now()
		next, err = cur.Update(req.Patch, req.UserID, now)
		if err != nil {
			return err
		}
		if next.CounterpartyID != cur.CounterpartyID {
			if err := s.validateCounterparty(ctx, next.CounterpartyID, next.TenantID); err != nil {
				return err
			}
		}

		if next.Qty.Contracted != cur.Qty.Contracted {
			f, err := s.fulfilments.GetByContract(ctx, cur.ID, cur.TenantID)
			switch {
			case err == nil:
				if err := s.fulfilments.Update(ctx, f.Rebase(next.Qty.Contracted, now), f.Version); err != nil {
					return err
				}
			case errors.IsCode(err, errors.ErrCodeNotFound):
			default:
				return err
			}
		}

		return s.contracts.Update(ctx, next, cur.Version)
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.audit(ctx, next.TenantID, req.UserID, entityContract, next.ID, "update", cur, next)
	s.publish(ctx, EventContractUpdated, next.ID, next.TenantID, req.UserID, next.Version, nil)

	s.log.Info().
		Str("contract_id", next.ID).
		Int("version", next.Version).
		Msg("Contract updated")

	return next, nil
}

// ActivateContract moves a draft contract to active.
func (s *ContractService) ActivateContract(ctx context.Context, id, tenantID, userID string) (domain.Contract, error) {
	cur, next, err := s.transition(ctx, id, tenantID, func(c domain.Contract, now time.Time) (domain.Contract, error) {
		next, err := c.Activate(now)
		if err != nil {
			return domain.Contract{}, err
		}
		next.UpdatedBy = userID
		return next, nil
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.audit(ctx, tenantID, userID, entityContract, id, "activate", cur, next)
	s.publish(ctx, EventContractActivated, id, tenantID, userID, next.Version, map[string]any{
		"from_status": cur.Status,
		"to_status":   next.Status,
	})

	s.log.Info().
		Str("contract_id", id).
		Str("tenant_id", tenantID).
		Msg("Contract activated")

	return next, nil
}

// CancelContract cancels a non-terminal contract. The reason must be at
// least 10 characters.
func (s *ContractService) CancelContract(ctx context.Context, id, tenantID, userID, reason string) (domain.Contract, error) {
	if err := domain.ValidateReason(reason); err != nil {
		return domain.Contract{}, err
	}

	cur, next, err := s.transition(ctx, id, tenantID, func(c domain.Contract, now time.Time) (domain.Contract, error) {
		return c.Cancel(reason, userID, now)
	})
	if err != nil {
		return domain.Contract{}, err
	}

	s.audit(ctx, tenantID, userID, entityContract, id, "cancel", cur, next)
	s.publish(ctx, EventContractCancelled, id, tenantID, userID, next.Version, map[string]any{
		"from_status": cur.Status,
		"reason":      *next.CancelReason,
	})

	s.log.Info().
		Str("contract_id", id).
		Str("tenant_id", tenantID).
		Str("from_status", string(cur.Status)).
		Msg("Contract cancelled")

	return next, nil
}

// DeleteContract removes a draft or cancelled contract with its amendments
// and fulfilment. The reason must be at least 10 characters.
func (s *ContractService) DeleteContract(ctx context.Context, id, tenantID, userID, reason string) error {
	if err := domain.ValidateReason(reason); err != nil {
		return err
	}

	c, err := s.contracts.GetByID(ctx, id, tenantID)
	if err != nil {
		return err
	}
	switch c.Status {
	case domain.ContractStatusDraft, domain.ContractStatusCancelled:
	default:
		return errors.IllegalTransition(entityContract, string(c.Status), "delete")
	}

	if err := s.contracts.Delete(ctx, id, tenantID, c.Version); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	s.audit(ctx, tenantID, userID, entityContract, id, "delete", c, nil)
	s.publish(ctx, EventContractDeleted, id, tenantID, userID, c.Version, map[string]any{
		"contract_no": c.ContractNo,
		"reason":      reason,
	})

	s.log.Info().
		Str("contract_id", id).
		Str("tenant_id", tenantID).
		Msg("Contract deleted")

	return nil
}

// transition loads a contract, applies fn and stores the result against the
// loaded version.
func (s *ContractService) transition(
	ctx context.Context,
	id, tenantID string,
	fn func(domain.Contract, time.Time) (domain.Contract, error),
) (domain.Contract, domain.Contract, error) {
	cur, err := s.contracts.GetByID(ctx, id, tenantID)
	if err != nil {
		return domain.Contract{}, domain.Contract{}, err
	}
	next, err := fn(cur, s.now())
	if err != nil {
		return domain.Contract{}, domain.Contract{}, err
	}
	if err := s.contracts.Update(ctx, next, cur.Version); err != nil {
		return domain.Contract{}, domain.Contract{}, err
	}
	return cur, next, nil
}

func (s *ContractService) validateCounterparty(ctx context.Context, counterpartyID, tenantID string) error {
	if s.counterparties == nil {
		return nil
	}
	valid, message, err := s.counterparties.ValidateCounterparty(ctx, counterpartyID, tenantID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to validate counterparty")
	}
	if !valid {
		if message == "" {
			message = "counterparty is not valid"
		}
		return errors.InvalidInput("counterparty_id", message)
	}
	return nil
}

func (s *ContractService) generateContractNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(s.newID(), "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("TC-%s-%s", now.Format("20060102"), suffix)
}

// publish is best effort: failures are logged and never undo the write.
func (s *ContractService) publish(ctx context.Context, eventType, aggregateID, tenantID, actorID string, version int, payload map[string]any) {
	if s.events == nil {
		return
	}

	event := &client.Event{
		EventID:     s.newID(),
		EventType:   eventType,
		AggregateID: aggregateID,
		TenantID:    tenantID,
		Timestamp:   s.now(),
		Actor:       client.EventActor{UserID: actorID},
		Payload:     payload,
		Metadata:    client.EventMetadata{Version: version, Source: eventSource},
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.FromContext(ctx).Warn().Err(err).
			Str("event_type", eventType).
			Str("aggregate_id", aggregateID).
			Msg("Failed to publish event (non-fatal)")
	}
}

// audit is best effort, like publish.
func (s *ContractService) audit(ctx context.Context, tenantID, actorID, entity, entityID, action string, before, after any) {
	if s.auditLog == nil {
		return
	}

	entry := &repository.AuditEntry{
		ID:          s.newID(),
		TenantID:    tenantID,
		Entity:      entity,
		EntityID:    entityID,
		Action:      action,
		ActorID:     actorID,
		Before:      snapshot(before),
		After:       snapshot(after),
		PerformedAt: s.now(),
	}
	if err := s.auditLog.Append(ctx, entry); err != nil {
		s.log.FromContext(ctx).Warn().Err(err).
			Str("entity", entity).
			Str("entity_id", entityID).
			Str("action", action).
			Msg("Failed to write audit entry (non-fatal)")
	}
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
