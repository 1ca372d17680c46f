package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// InMemoryTicketStore is a ticket.Store backed by a map.
type InMemoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]ticket.AccessTicket

	Saves atomic.Int32
}

func NewInMemoryTicketStore() *InMemoryTicketStore {
	return &InMemoryTicketStore{tickets: make(map[string]ticket.AccessTicket)}
}

func (s *InMemoryTicketStore) Get(_ context.Context, environment, service string) (*ticket.AccessTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[ticket.Key(environment, service)]
	if !ok {
		return nil, ierr.NewErrorf("no ticket for %s", ticket.Key(environment, service)).Mark(ierr.ErrNotFound)
	}
	return &t, nil
}

func (s *InMemoryTicketStore) Save(_ context.Context, t ticket.AccessTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.Key()] = t
	s.Saves.Add(1)
	return nil
}
