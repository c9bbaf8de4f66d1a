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

const fulfilmentColumns = `
	id, contract_id, tenant_id, contracted_qty, delivered_qty, priced_qty, invoiced_qty,
	open_qty, avg_price, quality_score, on_time_delivery_rate, schedule, timeline,
	version, created_at, updated_at`

// FulfilmentRepository stores one fulfilment ledger per contract. The
// schedule and timeline are kept as JSONB documents.
type FulfilmentRepository struct {
	db *database.DB
}

// NewFulfilmentRepository creates a new fulfilment repository
func NewFulfilmentRepository(db *database.DB) *FulfilmentRepository {
	return &FulfilmentRepository{db: db}
}

// Create inserts a fulfilment. A second ledger for the same contract is a conflict.
func (r *FulfilmentRepository) Create(ctx context.Context, f domain.Fulfilment) error {
	schedule, timeline, err := marshalLedger(f)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contract_fulfilments (id, contract_id, tenant_id, contracted_qty, delivered_qty,
		                                  priced_qty, invoiced_qty, open_qty, avg_price, quality_score,
		                                  on_time_delivery_rate, schedule, timeline, version,
		                                  created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.db.Conn(ctx).Exec(ctx, query,
		f.ID,
		f.ContractID,
		f.TenantID,
		f.ContractedQty,
		f.DeliveredQty,
		f.PricedQty,
		f.InvoicedQty,
		f.OpenQty,
		f.AvgPrice,
		f.QualityScore,
		f.OnTimeDeliveryRate,
		schedule,
		timeline,
		f.Version,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "failed to create fulfilment")
	}
	return nil
}

// GetByContract retrieves the ledger of a contract
func (r *FulfilmentRepository) GetByContract(ctx context.Context, contractID, tenantID string) (domain.Fulfilment, error) {
	query := `SELECT ` + fulfilmentColumns + ` FROM contract_fulfilments WHERE contract_id = $1 AND tenant_id = $2`

	f, err := scanFulfilment(r.db.Conn(ctx).QueryRow(ctx, query, contractID, tenantID))
	if err == pgx.ErrNoRows {
		return domain.Fulfilment{}, errors.NotFound("fulfilment", contractID)
	}
	if err != nil {
		return domain.Fulfilment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to get fulfilment")
	}
	return f, nil
}

// Update writes f if the stored version still equals expectedVersion.
func (r *FulfilmentRepository) Update(ctx context.Context, f domain.Fulfilment, expectedVersion int) error {
	schedule, timeline, err := marshalLedger(f)
	if err != nil {
		return err
	}

	query := `
		UPDATE contract_fulfilments
		SET contracted_qty = $4,
		    delivered_qty = $5,
		    priced_qty = $6,
		    invoiced_qty = $7,
		    open_qty = $8,
		    avg_price = $9,
		    quality_score = $10,
		    on_time_delivery_rate = $11,
		    schedule = $12,
		    timeline = $13,
		    version = $14,
		    updated_at = $15
		WHERE id = $1 AND tenant_id = $2 AND version = $3
	`

	q := r.db.Conn(ctx)
	tag, err := q.Exec(ctx, query,
		f.ID,
		f.TenantID,
		expectedVersion,
		f.ContractedQty,
		f.DeliveredQty,
		f.PricedQty,
		f.InvoicedQty,
		f.OpenQty,
		f.AvgPrice,
		f.QualityScore,
		f.OnTimeDeliveryRate,
		schedule,
		timeline,
		f.Version,
		f.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "failed to update fulfilment")
	}
	if tag.RowsAffected() == 0 {
		return casMiss(ctx, q, "contract_fulfilments", "fulfilment", f.ID, f.TenantID, expectedVersion)
	}
	return nil
}

func marshalLedger(f domain.Fulfilment) (schedule, timeline []byte, err error) {
	slots := f.Schedule
	if slots == nil {
		slots = []domain.ScheduleSlot{}
	}
	schedule, err = json.Marshal(slots)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal delivery schedule")
	}
	timeline, err = json.Marshal(f.Timeline)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal timeline")
	}
	return schedule, timeline, nil
}

func scanFulfilment(sc rowScanner) (domain.Fulfilment, error) {
	var (
		f                          domain.Fulfilment
		scheduleJSON, timelineJSON []byte
	)
	err := sc.Scan(
		&f.ID,
		&f.ContractID,
		&f.TenantID,
		&f.ContractedQty,
		&f.DeliveredQty,
		&f.PricedQty,
		&f.InvoicedQty,
		&f.OpenQty,
		&f.AvgPrice,
		&f.QualityScore,
		&f.OnTimeDeliveryRate,
		&scheduleJSON,
		&timelineJSON,
		&f.Version,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return domain.Fulfilment{}, err
	}
	if err := json.Unmarshal(scheduleJSON, &f.Schedule); err != nil {
		return domain.Fulfilment{}, fmt.Errorf("unmarshal delivery schedule: %w", err)
	}
	if err := json.Unmarshal(timelineJSON, &f.Timeline); err != nil {
		return domain.Fulfilment{}, fmt.Errorf("unmarshal timeline: %w", err)
	}
	return f, nil
}
