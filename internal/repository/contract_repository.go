package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/pkg/database"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

const contractColumns = `
	id, tenant_id, contract_no, type, commodity, counterparty_id, incoterm,
	delivery_from, delivery_to, qty_unit, qty_contracted, qty_tolerance,
	pricing, delivery, notes, status, cancel_reason, cancelled_at, cancelled_by,
	version, created_by, updated_by, created_at, updated_at`

var contractSortColumns = map[SortField]string{
	SortCreatedAt:    "created_at",
	SortUpdatedAt:    "updated_at",
	SortContractNo:   "contract_no",
	SortDeliveryFrom: "delivery_from",
}

// ContractRepository handles contract data operations
type ContractRepository struct {
	db *database.DB
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db *database.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create inserts a new contract. A duplicate contract number within the
// tenant yields a conflict error.
func (r *ContractRepository) Create(ctx context.Context, c domain.Contract) error {
	pricing, delivery, err := marshalTerms(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contracts (id, tenant_id, contract_no, type, commodity, counterparty_id, incoterm,
		                       delivery_from, delivery_to, qty_unit, qty_contracted, qty_tolerance,
		                       pricing, delivery, notes, status, version, created_by, updated_by,
		                       created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err = r.db.Conn(ctx).Exec(ctx, query,
		c.ID,
		c.TenantID,
		c.ContractNo,
		string(c.Type),
		string(c.Commodity),
		c.CounterpartyID,
		c.Incoterm,
		c.DeliveryWindow.From,
		c.DeliveryWindow.To,
		c.Qty.Unit,
		c.Qty.Contracted,
		c.Qty.Tolerance,
		pricing,
		delivery,
		c.Notes,
		string(c.Status),
		c.Version,
		c.CreatedBy,
		c.UpdatedBy,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "failed to create contract")
	}
	return nil
}

// GetByID retrieves a contract by ID within a tenant
func (r *ContractRepository) GetByID(ctx context.Context, id, tenantID string) (domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 AND tenant_id = $2`

	c, err := scanContract(r.db.Conn(ctx).QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return domain.Contract{}, errors.NotFound("contract", id)
	}
	if err != nil {
		return domain.Contract{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to get contract")
	}
	return c, nil
}

// List retrieves contracts with filtering, sorting and pagination. The second
// return value is the total number of matches before pagination.
func (r *ContractRepository) List(ctx context.Context, tenantID string, f ContractFilter) ([]domain.Contract, int64, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{tenantID}
	argCount := 2

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", argCount)
		args = append(args, statuses)
		argCount++
	}
	if f.Type != nil {
		where += fmt.Sprintf(" AND type = $%d", argCount)
		args = append(args, string(*f.Type))
		argCount++
	}
	if f.Commodity != nil {
		where += fmt.Sprintf(" AND commodity = $%d", argCount)
		args = append(args, string(*f.Commodity))
		argCount++
	}
	if f.CounterpartyID != nil {
		where += fmt.Sprintf(" AND counterparty_id = $%d", argCount)
		args = append(args, *f.CounterpartyID)
		argCount++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND contract_no ILIKE $%d", argCount)
		args = append(args, "%"+f.Search+"%")
		argCount++
	}
	if f.DeliveryFrom != nil {
		where += fmt.Sprintf(" AND delivery_to >= $%d", argCount)
		args = append(args, *f.DeliveryFrom)
		argCount++
	}
	if f.DeliveryTo != nil {
		where += fmt.Sprintf(" AND delivery_from <= $%d", argCount)
		args = append(args, *f.DeliveryTo)
		argCount++
	}

	var total int64
	if err := r.db.Conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM contracts`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count contracts")
	}

	column, ok := contractSortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	query := `SELECT ` + contractColumns + ` FROM contracts` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d", column, dir, dir, argCount, argCount+1)
	queryArgs := append(args, f.Limit, f.Offset)

	rows, err := r.db.Conn(ctx).Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list contracts")
	}
	defer rows.Close()

	contracts := make([]domain.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan contract")
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list contracts")
	}

	return contracts, total, nil
}

// Update writes c if the stored version still equals expectedVersion.
func (r *ContractRepository) Update(ctx context.Context, c domain.Contract, expectedVersion int) error {
	pricing, delivery, err := marshalTerms(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE contracts
		SET contract_no = $4,
		    commodity = $5,
		    counterparty_id = $6,
		    incoterm = $7,
		    delivery_from = $8,
		    delivery_to = $9,
		    qty_unit = $10,
		    qty_contracted = $11,
		    qty_tolerance = $12,
		    pricing = $13,
		    delivery = $14,
		    notes = $15,
		    status = $16,
		    cancel_reason = $17,
		    cancelled_at = $18,
		    cancelled_by = $19,
		    version = $20,
		    updated_by = $21,
		    updated_at = $22
		WHERE id = $1 AND tenant_id = $2 AND version = $3
	`

	q := r.db.Conn(ctx)
	tag, err := q.Exec(ctx, query,
		c.ID,
		c.TenantID,
		expectedVersion,
		c.ContractNo,
		string(c.Commodity),
		c.CounterpartyID,
		c.Incoterm,
		c.DeliveryWindow.From,
		c.DeliveryWindow.To,
		c.Qty.Unit,
		c.Qty.Contracted,
		c.Qty.Tolerance,
		pricing,
		delivery,
		c.Notes,
		string(c.Status),
		c.CancelReason,
		c.CancelledAt,
		c.CancelledBy,
		c.Version,
		c.UpdatedBy,
		c.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "failed to update contract")
	}
	if tag.RowsAffected() == 0 {
		return casMiss(ctx, q, "contracts", "contract", c.ID, c.TenantID, expectedVersion)
	}
	return nil
}

// Delete removes a contract together with its amendments and fulfilment.
func (r *ContractRepository) Delete(ctx context.Context, id, tenantID string, expectedVersion int) error {
	q := r.db.Conn(ctx)
	tag, err := q.Exec(ctx,
		`DELETE FROM contracts WHERE id = $1 AND tenant_id = $2 AND version = $3`,
		id, tenantID, expectedVersion,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete contract")
	}
	if tag.RowsAffected() == 0 {
		return casMiss(ctx, q, "contracts", "contract", id, tenantID, expectedVersion)
	}
	return nil
}

func marshalTerms(c domain.Contract) (pricing, delivery []byte, err error) {
	pricing, err = json.Marshal(c.Pricing)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal pricing")
	}
	delivery, err = json.Marshal(c.Delivery)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal delivery terms")
	}
	return pricing, delivery, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(sc rowScanner) (domain.Contract, error) {
	var (
		c                         domain.Contract
		typ, commodity, status    string
		pricingJSON, deliveryJSON []byte
	)
	err := sc.Scan(
		&c.ID,
		&c.TenantID,
		&c.ContractNo,
		&typ,
		&commodity,
		&c.CounterpartyID,
		&c.Incoterm,
		&c.DeliveryWindow.From,
		&c.DeliveryWindow.To,
		&c.Qty.Unit,
		&c.Qty.Contracted,
		&c.Qty.Tolerance,
		&pricingJSON,
		&deliveryJSON,
		&c.Notes,
		&status,
		&c.CancelReason,
		&c.CancelledAt,
		&c.CancelledBy,
		&c.Version,
		&c.CreatedBy,
		&c.UpdatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Contract{}, err
	}
	c.Type = domain.ContractType(typ)
	c.Commodity = domain.Commodity(commodity)
	c.Status = domain.ContractStatus(status)

	if err := json.Unmarshal(pricingJSON, &c.Pricing); err != nil {
		return domain.Contract{}, fmt.Errorf("unmarshal pricing: %w", err)
	}
	if err := json.Unmarshal(deliveryJSON, &c.Delivery); err != nil {
		return domain.Contract{}, fmt.Errorf("unmarshal delivery terms: %w", err)
	}
	return c, nil
}
