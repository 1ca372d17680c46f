package testutil

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/3tcapital/facturador/internal/core/invoice"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// InMemoryInvoiceStore is an invoice.Repository backed by a map. It stores
// copies so callers cannot mutate persisted state.
type InMemoryInvoiceStore struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]*invoice.Invoice
	locked   map[uuid.UUID]bool

	Updates atomic.Int32
	// UpdateErr, when set, is returned by Update.
	UpdateErr error
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		invoices: make(map[uuid.UUID]*invoice.Invoice),
		locked:   make(map[uuid.UUID]bool),
	}
}

func (s *InMemoryInvoiceStore) Create(_ context.Context, inv *invoice.Invoice) (*invoice.Invoice, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.SourceReference != nil {
		for _, existing := range s.invoices {
			if existing.SourceReference != nil && *existing.SourceReference == *inv.SourceReference &&
				existing.State != invoice.StateVoid {
				return cloneInvoice(existing), false, nil
			}
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	return cloneInvoice(inv), true, nil
}

func (s *InMemoryInvoiceStore) Get(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	return cloneInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) FindBySourceReference(_ context.Context, ref string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.SourceReference != nil && *inv.SourceReference == ref && inv.State != invoice.StateVoid {
			return cloneInvoice(inv), nil
		}
	}
	return nil, ierr.NewErrorf("no invoice for source reference %q", ref).Mark(ierr.ErrNotFound)
}

func (s *InMemoryInvoiceStore) Update(_ context.Context, inv *invoice.Invoice, expected invoice.Guard) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.invoices[inv.ID]
	if !ok {
		return ierr.NewErrorf("invoice %s not found", inv.ID).Mark(ierr.ErrNotFound)
	}
	if !expected.Matches(stored) {
		return invoice.ConcurrentUpdate(inv, stored.State)
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	s.Updates.Add(1)
	return nil
}

func (s *InMemoryInvoiceStore) Lock(_ context.Context, id uuid.UUID) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked[id] {
		return nil, invoice.AuthorizationInProgress(id)
	}
	s.locked[id] = true
	return func() {
		s.mu.Lock()
		delete(s.locked, id)
		s.mu.Unlock()
	}, nil
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	out := *inv
	out.Lines = slices.Clone(inv.Lines)
	out.Totals.Buckets = slices.Clone(inv.Totals.Buckets)
	if inv.Number != nil {
		n := *inv.Number
		out.Number = &n
	}
	if inv.Authorization != nil {
		a := *inv.Authorization
		a.Observations = slices.Clone(inv.Authorization.Observations)
		out.Authorization = &a
	}
	return &out
}
