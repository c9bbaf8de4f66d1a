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

const amendmentColumns = `
	id, contract_id, tenant_id, type, reason, changes, notes, status, requested_by,
	approved_by, approved_at, effective_at, rejected_by, rejected_at, rejection_reason,
	version, created_at, updated_at`

// AmendmentRepository handles amendment data operations
type AmendmentRepository struct {
	db *database.DB
}

// NewAmendmentRepository creates a new amendment repository
func NewAmendmentRepository(db *database.DB) *AmendmentRepository {
	return &AmendmentRepository{db: db}
}

// Create inserts a new amendment
func (r *AmendmentRepository) Create(ctx context.Context, a domain.Amendment) error {
	changes, err := json.Marshal(a.Changes)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal amendment changes")
	}

	query := `
		INSERT INTO contract_amendments (id, contract_id, tenant_id, type, reason, changes, notes,
		                                 status, requested_by, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.Conn(ctx).Exec(ctx, query,
		a.ID,
		a.ContractID,
		a.TenantID,
		string(a.Type),
		a.Reason,
		changes,
		a.Notes,
		string(a.Status),
		a.RequestedBy,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "failed to create amendment")
	}
	return nil
}

// GetByID retrieves an amendment by ID within a tenant
func (r *AmendmentRepository) GetByID(ctx context.Context, id, tenantID string) (domain.Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM contract_amendments WHERE id = $1 AND tenant_id = $2`

	a, err := scanAmendment(r.db.Conn(ctx).QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return domain.Amendment{}, errors.NotFound("amendment", id)
	}
	if err != nil {
		return domain.Amendment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to get amendment")
	}
	return a, nil
}

// ListByContract returns a contract's amendments oldest-first.
func (r *AmendmentRepository) ListByContract(ctx context.Context, contractID, tenantID string) ([]domain.Amendment, error) {
	query := `SELECT ` + amendmentColumns + `
		FROM contract_amendments
		WHERE contract_id = $1 AND tenant_id = $2
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Conn(ctx).Query(ctx, query, contractID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list amendments")
	}
	defer rows.Close()

	amendments := make([]domain.Amendment, 0)
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan amendment")
		}
		amendments = append(amendments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list amendments")
	}
	return amendments, nil
}

// Update writes a if the stored version still equals expectedVersion.
func (r *AmendmentRepository) Update(ctx context.Context, a domain.Amendment, expectedVersion int) error {
	query := `
		UPDATE contract_amendments
		SET status = $4,
		    approved_by = $5,
		    approved_at = $6,
		    effective_at = $7,
		    rejected_by = $8,
		    rejected_at = $9,
		    rejection_reason = $10,
		    version = $11,
		    updated_at = $12
		WHERE id = $1 AND tenant_id = $2 AND version = $3
	`

	q := r.db.Conn(ctx)
	tag, err := q.Exec(ctx, query,
		a.ID,
		a.TenantID,
		expectedVersion,
		string(a.Status),
		a.ApprovedBy,
		a.ApprovedAt,
		a.EffectiveAt,
		a.RejectedBy,
		a.RejectedAt,
		a.RejectionReason,
		a.Version,
		a.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "failed to update amendment")
	}
	if tag.RowsAffected() == 0 {
		return casMiss(ctx, q, "contract_amendments", "amendment", a.ID, a.TenantID, expectedVersion)
	}
	return nil
}

func scanAmendment(sc rowScanner) (domain.Amendment, error) {
	var (
		a           domain.Amendment
		typ, status string
		changesJSON []byte
	)
	err := sc.Scan(
		&a.ID,
		&a.ContractID,
		&a.TenantID,
		&typ,
		&a.Reason,
		&changesJSON,
		&a.Notes,
		&status,
		&a.RequestedBy,
		&a.ApprovedBy,
		&a.ApprovedAt,
		&a.EffectiveAt,
		&a.RejectedBy,
		&a.RejectedAt,
		&a.RejectionReason,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return domain.Amendment{}, err
	}
	a.Type = domain.AmendmentType(typ)
	a.Status = domain.AmendmentStatus(status)

	if err := json.Unmarshal(changesJSON, &a.Changes); err != nil {
		return domain.Amendment{}, fmt.Errorf("unmarshal amendment changes: %w", err)
	}
	return a, nil
}
