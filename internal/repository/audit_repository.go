package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-trade-contracts/pkg/database"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

// AuditRepository appends and reads immutable audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table has an update/delete prevention
// trigger so this is the only mutation operation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO contract_audit_log
		    (id, tenant_id, entity, entity_id,
		     action, actor_id,
		     before_state, after_state,
		     metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6,
		        $7, $8,
		        $9)
		RETURNING performed_at
	`

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.Entity,
		entry.EntityID,
		entry.Action,
		entry.ActorID,
		nullJSON(entry.Before),
		nullJSON(entry.After),
		metadataJSON,
	).Scan(&entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByEntity returns the full audit trail for an entity ordered oldest-first.
func (r *AuditRepository) GetByEntity(ctx context.Context, entityID, tenantID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, tenant_id, entity, entity_id,
		       action, actor_id,
		       before_state, after_state,
		       metadata, performed_at
		FROM contract_audit_log
		WHERE entity_id = $1 AND tenant_id = $2
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, entityID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

func (r *AuditRepository) scanEntry(sc rowScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var before, after, metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.Entity,
		&entry.EntityID,
		&entry.Action,
		&entry.ActorID,
		&before,
		&after,
		&metadataJSON,
		&entry.PerformedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}
	entry.Before = before
	entry.After = after

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
