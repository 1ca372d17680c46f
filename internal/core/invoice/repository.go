package invoice

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists invoices. Invoices are never deleted.
type Repository interface {
	// Create inserts a new invoice with its lines. When another non-void
	// invoice already holds the same source reference, that invoice is
	// returned with created=false.
	Create(ctx context.Context, inv *Invoice) (stored *Invoice, created bool, err error)
	// Get returns the invoice or an error marked ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindBySourceReference returns the non-void invoice for ref or an
	// error marked ErrNotFound.
	FindBySourceReference(ctx context.Context, ref string) (*Invoice, error)
	// Update writes state, number and authorization when the stored row
	// still matches expected. A mismatch returns an error marked
	// ErrInvalidState.
	Update(ctx context.Context, inv *Invoice, expected Guard) error
	// Lock claims the invoice for one authorization run across every
	// instance sharing the store. A held claim returns an error marked
	// ErrInvalidState; release must be called once the run ends.
	Lock(ctx context.Context, id uuid.UUID) (release func(), err error)
}
