package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3tcapital/facturador/internal/core/audit"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// AuthorizationLog is the append-only authorization_log table.
type AuthorizationLog struct {
	pool *pgxpool.Pool
}

// NewAuthorizationLog creates the authorization log repository.
func NewAuthorizationLog(pool *pgxpool.Pool) *AuthorizationLog {
	return &AuthorizationLog{pool: pool}
}

// Append inserts an entry. Rows are never updated.
func (r *AuthorizationLog) Append(ctx context.Context, entry audit.AuthorizationLogEntry) error {
	const query = `
		INSERT INTO authorization_log (id, invoice_id, method, outcome, number, detail, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.InvoiceID,
		entry.Method,
		string(entry.Outcome),
		entry.Number,
		entry.Detail,
		entry.CorrelationID,
		entry.CreatedAt,
	)
	if err != nil {
		return ierr.WithError(err).WithMessage("insert authorization log").Mark(ierr.ErrDatabase)
	}
	return nil
}

// ListByInvoice returns the invoice's attempts oldest first.
func (r *AuthorizationLog) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]audit.AuthorizationLogEntry, error) {
	const query = `
		SELECT id, invoice_id, method, outcome, number, detail, correlation_id, created_at
		FROM authorization_log
		WHERE invoice_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("query authorization log").Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	entries := []audit.AuthorizationLogEntry{}
	for rows.Next() {
		var e audit.AuthorizationLogEntry
		var outcome string
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Method, &outcome, &e.Number, &e.Detail, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan authorization log: %w", err)
		}
		e.Outcome = audit.Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorization log: %w", err)
	}
	return entries, nil
}
