package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3tcapital/facturador/internal/core/sequence"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// lock_not_available
const pgLockNotAvailable = "55P03"

// Repository keeps one row per scope in sequence_counters and serializes
// callers with SELECT ... FOR UPDATE.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository creates the counter store. A zero lockTimeout waits for the
// row lock indefinitely (bounded only by ctx).
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// Next increments the counter in one transaction. A missing counter is
// seeded outside any lock and inserted with ON CONFLICT DO NOTHING, so
// concurrent first allocations converge on a single row.
func (r *Repository) Next(ctx context.Context, scope sequence.Scope, seed sequence.SeedFunc) (int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		next, found, err := r.increment(ctx, scope)
		if err != nil {
			return 0, err
		}
		if found {
			return next, nil
		}

		initial, err := seed(ctx)
		if err != nil {
			return 0, ierr.WithError(err).WithMessagef("seed counter %s", scope).Mark(ierr.ErrSequence)
		}
		if err := r.insertIfAbsent(ctx, scope, initial); err != nil {
			return 0, err
		}
	}
	return 0, ierr.NewErrorf("counter %s vanished after seeding", scope).Mark(ierr.ErrSequence)
}

func (r *Repository) increment(ctx context.Context, scope sequence.Scope) (next int64, found bool, err error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var last int64
	err = tx.QueryRow(ctx, `SELECT last_number FROM sequence_counters WHERE scope_key = $1 FOR UPDATE`, string(scope)).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, lockError(err, scope)
	}

	next = last + 1
	if _, err := tx.Exec(ctx, `UPDATE sequence_counters SET last_number = $2, updated_at = NOW() WHERE scope_key = $1`, string(scope), next); err != nil {
		return 0, false, lockError(err, scope)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, ierr.WithError(err).WithMessagef("commit counter %s", scope).Mark(ierr.ErrSequence)
	}
	return next, true, nil
}

func (r *Repository) insertIfAbsent(ctx context.Context, scope sequence.Scope, initial int64) error {
	const query = `
		INSERT INTO sequence_counters (scope_key, last_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (scope_key) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, string(scope), initial); err != nil {
		return ierr.WithError(err).WithMessagef("create counter %s", scope).Mark(ierr.ErrSequence)
	}
	return nil
}

// Overwrite sets the counter to value under the row lock.
func (r *Repository) Overwrite(ctx context.Context, scope sequence.Scope, value int64) (int64, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO sequence_counters (scope_key, last_number) VALUES ($1, 0) ON CONFLICT (scope_key) DO NOTHING`, string(scope)); err != nil {
		return 0, lockError(err, scope)
	}

	var previous int64
	if err := tx.QueryRow(ctx, `SELECT last_number FROM sequence_counters WHERE scope_key = $1 FOR UPDATE`, string(scope)).Scan(&previous); err != nil {
		return 0, lockError(err, scope)
	}
	if previous != value {
		if _, err := tx.Exec(ctx, `UPDATE sequence_counters SET last_number = $2, updated_at = NOW() WHERE scope_key = $1`, string(scope), value); err != nil {
			return 0, lockError(err, scope)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, ierr.WithError(err).WithMessagef("commit counter %s", scope).Mark(ierr.ErrSequence)
	}
	return previous, nil
}

// Get reads the counter without locking.
func (r *Repository) Get(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error) {
	c := sequence.Counter{Scope: scope}
	err := r.pool.QueryRow(ctx, `SELECT last_number, updated_at FROM sequence_counters WHERE scope_key = $1`, string(scope)).
		Scan(&c.LastNumber, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ierr.NewErrorf("no counter for %s", scope).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("query counter").Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *Repository) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("begin counter transaction").Mark(ierr.ErrSequence)
	}
	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, ierr.WithError(err).WithMessage("set lock timeout").Mark(ierr.ErrSequence)
		}
	}
	return tx, nil
}

func lockError(err error, scope sequence.Scope) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return ierr.WithError(err).
			WithMessagef("counter %s is locked", scope).
			WithHint("another allocation holds the counter; retry the request").
			Mark(ierr.ErrSequence)
	}
	return ierr.WithError(err).WithMessagef("counter %s", scope).Mark(ierr.ErrSequence)
}
