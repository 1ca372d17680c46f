package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/3tcapital/facturador/internal/core/sequence"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// InMemorySequenceStore is a sequence.Store backed by a map.
type InMemorySequenceStore struct {
	mu       sync.Mutex
	counters map[sequence.Scope]sequence.Counter
}

func NewInMemorySequenceStore() *InMemorySequenceStore {
	return &InMemorySequenceStore{counters: make(map[sequence.Scope]sequence.Counter)}
}

// Seed sets the counter directly.
func (s *InMemorySequenceStore) Seed(scope sequence.Scope, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[scope] = sequence.Counter{Scope: scope, LastNumber: last, UpdatedAt: time.Now()}
}

func (s *InMemorySequenceStore) Next(ctx context.Context, scope sequence.Scope, seed sequence.SeedFunc) (int64, error) {
	s.mu.Lock()
	_, exists := s.counters[scope]
	s.mu.Unlock()

	if !exists {
		var start int64
		if seed != nil {
			var err error
			if start, err = seed(ctx); err != nil {
				return 0, ierr.WithError(err).WithMessagef("seed %s", scope).Mark(ierr.ErrSequence)
			}
		}
		s.mu.Lock()
		if _, ok := s.counters[scope]; !ok {
			s.counters[scope] = sequence.Counter{Scope: scope, LastNumber: start, UpdatedAt: time.Now()}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[scope]
	c.LastNumber++
	c.UpdatedAt = time.Now()
	s.counters[scope] = c
	return c.LastNumber, nil
}

func (s *InMemorySequenceStore) Overwrite(_ context.Context, scope sequence.Scope, value int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[scope]
	if !ok {
		c = sequence.Counter{Scope: scope}
	}
	previous := c.LastNumber
	if !ok || previous != value {
		c.LastNumber = value
		c.UpdatedAt = time.Now()
		s.counters[scope] = c
	}
	return previous, nil
}

func (s *InMemorySequenceStore) Get(_ context.Context, scope sequence.Scope) (*sequence.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[scope]
	if !ok {
		return nil, ierr.NewErrorf("counter %s not found", scope).Mark(ierr.ErrNotFound)
	}
	return &c, nil
}
