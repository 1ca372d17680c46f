package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Repository stores access tickets in access_tickets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the ticket store.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the ticket for environment and service.
func (r *Repository) Get(ctx context.Context, environment, service string) (*ticket.AccessTicket, error) {
	const query = `
		SELECT environment, service, token, sign, issued_at, expires_at
		FROM access_tickets
		WHERE environment = $1 AND service = $2
	`
	var t ticket.AccessTicket
	err := r.pool.QueryRow(ctx, query, environment, service).
		Scan(&t.Environment, &t.Service, &t.Token, &t.Sign, &t.IssuedAt, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ierr.NewErrorf("no ticket stored for %s", ticket.Key(environment, service)).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("query access ticket").Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

// Save upserts the ticket keyed by environment and service.
func (r *Repository) Save(ctx context.Context, t ticket.AccessTicket) error {
	const query = `
		INSERT INTO access_tickets (environment, service, token, sign, issued_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (environment, service) DO UPDATE SET
			token = EXCLUDED.token,
			sign = EXCLUDED.sign,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, t.Environment, t.Service, t.Token, t.Sign, t.IssuedAt, t.ExpiresAt); err != nil {
		return ierr.WithError(err).WithMessage("upsert access ticket").Mark(ierr.ErrDatabase)
	}
	return nil
}
