package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pesio-ai/be-trade-contracts/pkg/database"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

const pgUniqueViolation = "23505"

// writeError maps a pgx write failure to an application error.
func writeError(err error, message string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Wrap(err, errors.ErrCodeConflict, message+": duplicate "+pgErr.ConstraintName)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}

// casMiss explains a versioned write that touched no row: the row is either
// gone for this tenant or was written by someone else first.
func casMiss(ctx context.Context, q database.Querier, table, entity, id, tenantID string, expected int) error {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND tenant_id = $2)`,
		id, tenantID,
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check "+entity)
	}
	if !exists {
		return errors.NotFound(entity, id)
	}
	return errors.ConcurrencyConflict(entity, id, expected)
}
