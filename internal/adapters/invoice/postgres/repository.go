package postgres

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3tcapital/facturador/internal/core/invoice"
	"github.com/3tcapital/facturador/internal/core/tax"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

const unlockTimeout = 5 * time.Second

const selectInvoice = `
	SELECT id, source_reference, doc_type, point_of_sale, series, concept,
	       receiver_doc_type, receiver_doc_number, receiver_tax_condition,
	       currency, quote, pricing_mode, issue_date, service_from, service_to, payment_due,
	       taxed_net, exempt_net, tax_total, other_charges, grand_total, tax_buckets,
	       state, number, authorization_code, authorization_due_date, authorization_result,
	       authorization_notes, authorized_at, created_at, updated_at
	FROM invoices
`

// Repository stores invoices and their lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the invoice store.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the invoice and its lines in one transaction. The partial
// unique index on source_reference makes concurrent creates with the same
// reference converge on one row.
func (r *Repository) Create(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, bool, error) {
	buckets, err := json.Marshal(inv.Totals.Buckets)
	if err != nil {
		return nil, false, fmt.Errorf("marshal tax buckets: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, ierr.WithError(err).WithMessage("begin invoice transaction").Mark(ierr.ErrDatabase)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
		INSERT INTO invoices (
			id, source_reference, doc_type, point_of_sale, series, concept,
			receiver_doc_type, receiver_doc_number, receiver_tax_condition,
			currency, quote, pricing_mode, issue_date, service_from, service_to, payment_due,
			taxed_net, exempt_net, tax_total, other_charges, grand_total, tax_buckets,
			state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		          $17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (source_reference) WHERE source_reference IS NOT NULL AND state <> 'VOID' DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err = tx.QueryRow(ctx, insert,
		inv.ID, inv.SourceReference, inv.DocType, inv.PointOfSale, inv.Series, inv.Concept,
		inv.Receiver.DocType, inv.Receiver.DocNumber, inv.Receiver.TaxCondition,
		inv.Currency, inv.Quote, string(inv.PricingMode), inv.IssueDate, inv.ServiceFrom, inv.ServiceTo, inv.PaymentDue,
		inv.Totals.TaxedNet, inv.Totals.ExemptNet, inv.Totals.TaxTotal, inv.Totals.OtherCharges, inv.Totals.GrandTotal, buckets,
		string(inv.State), inv.CreatedAt, inv.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, err := r.FindBySourceReference(ctx, *inv.SourceReference)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, ierr.WithError(err).WithMessage("insert invoice").Mark(ierr.ErrDatabase)
	}

	batch := &pgx.Batch{}
	for i, l := range inv.Lines {
		batch.Queue(`
			INSERT INTO invoice_lines (invoice_id, position, description, quantity, unit_price, rate_code, net_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inv.ID, i+1, l.Description, l.Quantity, l.UnitPrice, int(l.RateCode), l.NetAmount, l.TaxAmount,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, false, ierr.WithError(err).WithMessage("insert invoice lines").Mark(ierr.ErrDatabase)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, ierr.WithError(err).WithMessage("commit invoice").Mark(ierr.ErrDatabase)
	}
	return inv, true, nil
}

// Get loads an invoice with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectInvoice+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("query invoice").Mark(ierr.ErrDatabase)
	}
	if err := r.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// FindBySourceReference loads the non-void invoice for ref.
func (r *Repository) FindBySourceReference(ctx context.Context, ref string) (*invoice.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectInvoice+` WHERE source_reference = $1 AND state <> 'VOID'`, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ierr.NewErrorf("no invoice for source reference %q", ref).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("query invoice by source reference").Mark(ierr.ErrDatabase)
	}
	if err := r.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Update writes the mutable part of the invoice: state, number and
// authorization. The row is only written while it still holds the expected
// state and number, so two callers racing on one invoice cannot both apply a
// result.
func (r *Repository) Update(ctx context.Context, inv *invoice.Invoice, expected invoice.Guard) error {
	var (
		code, result *string
		dueDate      *time.Time
		processedAt  *time.Time
		notes        []byte
	)
	if a := inv.Authorization; a != nil {
		code = &a.Code
		res := string(a.Result)
		result = &res
		dueDate = a.DueDate
		processedAt = &a.ProcessedAt
		raw, err := json.Marshal(a.Observations)
		if err != nil {
			return fmt.Errorf("marshal observations: %w", err)
		}
		notes = raw
	}

	const query = `
		UPDATE invoices SET
			state = $2,
			number = $3,
			authorization_code = $4,
			authorization_due_date = $5,
			authorization_result = $6,
			authorization_notes = $7,
			authorized_at = $8,
			updated_at = $9
		WHERE id = $1 AND state = $10 AND number IS NOT DISTINCT FROM $11
	`
	tag, err := r.pool.Exec(ctx, query, inv.ID, string(inv.State), inv.Number, code, dueDate, result, notes, processedAt, inv.UpdatedAt,
		string(expected.State), expected.Number)
	if err != nil {
		return ierr.WithError(err).WithMessage("update invoice").Mark(ierr.ErrDatabase)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var stored string
	err = r.pool.QueryRow(ctx, `SELECT state FROM invoices WHERE id = $1`, inv.ID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return ierr.NewErrorf("invoice %s not found", inv.ID).Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return ierr.WithError(err).WithMessage("query invoice state").Mark(ierr.ErrDatabase)
	}
	return invoice.ConcurrentUpdate(inv, invoice.State(stored))
}

// Lock takes a session advisory lock keyed on the invoice id. The pooled
// connection stays checked out until release runs.
func (r *Repository) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("acquire lock connection").Mark(ierr.ErrDatabase)
	}

	key := advisoryKey(id)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, ierr.WithError(err).WithMessage("lock invoice").Mark(ierr.ErrDatabase)
	}
	if !locked {
		conn.Release()
		return nil, invoice.AuthorizationInProgress(id)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			// A session lock dies with its connection.
			_ = conn.Hijack().Close(unlockCtx)
			return
		}
		conn.Release()
	}, nil
}

func advisoryKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}

func (r *Repository) loadLines(ctx context.Context, inv *invoice.Invoice) error {
	rows, err := r.pool.Query(ctx, `
		SELECT description, quantity, unit_price, rate_code, net_amount, tax_amount
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY position`, inv.ID)
	if err != nil {
		return ierr.WithError(err).WithMessage("query invoice lines").Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	for rows.Next() {
		var l invoice.Line
		var code int
		if err := rows.Scan(&l.Description, &l.Quantity, &l.UnitPrice, &code, &l.NetAmount, &l.TaxAmount); err != nil {
			return fmt.Errorf("scan invoice line: %w", err)
		}
		l.RateCode = tax.RateCode(code)
		inv.Lines = append(inv.Lines, l)
	}
	return rows.Err()
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var (
		inv                       invoice.Invoice
		pricingMode, state        string
		buckets, notes            []byte
		authCode, authResult      *string
		authDueDate, authorizedAt *time.Time
	)
	err := row.Scan(
		&inv.ID, &inv.SourceReference, &inv.DocType, &inv.PointOfSale, &inv.Series, &inv.Concept,
		&inv.Receiver.DocType, &inv.Receiver.DocNumber, &inv.Receiver.TaxCondition,
		&inv.Currency, &inv.Quote, &pricingMode, &inv.IssueDate, &inv.ServiceFrom, &inv.ServiceTo, &inv.PaymentDue,
		&inv.Totals.TaxedNet, &inv.Totals.ExemptNet, &inv.Totals.TaxTotal, &inv.Totals.OtherCharges, &inv.Totals.GrandTotal, &buckets,
		&state, &inv.Number, &authCode, &authDueDate, &authResult,
		&notes, &authorizedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.PricingMode = tax.PricingMode(pricingMode)
	inv.State = invoice.State(state)

	if len(buckets) > 0 {
		if err := json.Unmarshal(buckets, &inv.Totals.Buckets); err != nil {
			return nil, fmt.Errorf("unmarshal tax buckets: %w", err)
		}
	}

	if authResult != nil {
		a := invoice.Authorization{Result: invoice.ResultCode(*authResult), DueDate: authDueDate}
		if authCode != nil {
			a.Code = *authCode
		}
		if authorizedAt != nil {
			a.ProcessedAt = *authorizedAt
		}
		if len(notes) > 0 {
			if err := json.Unmarshal(notes, &a.Observations); err != nil {
				return nil, fmt.Errorf("unmarshal observations: %w", err)
			}
		}
		inv.Authorization = &a
	}
	return &inv, nil
}
