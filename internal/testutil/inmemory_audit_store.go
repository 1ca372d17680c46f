package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/3tcapital/facturador/internal/core/audit"
)

// InMemoryAuthorizationLog is an audit.LogRepository backed by a slice.
type InMemoryAuthorizationLog struct {
	mu      sync.RWMutex
	entries []audit.AuthorizationLogEntry
}

func NewInMemoryAuthorizationLog() *InMemoryAuthorizationLog {
	return &InMemoryAuthorizationLog{}
}

func (s *InMemoryAuthorizationLog) Append(_ context.Context, entry audit.AuthorizationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryAuthorizationLog) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]audit.AuthorizationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []audit.AuthorizationLogEntry{}
	for _, e := range s.entries {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// InMemoryProviderAudit is an audit.Repository backed by a slice.
type InMemoryProviderAudit struct {
	mu      sync.RWMutex
	records []audit.ProviderAuditLog
}

func NewInMemoryProviderAudit() *InMemoryProviderAudit {
	return &InMemoryProviderAudit{}
}

func (s *InMemoryProviderAudit) Save(_ context.Context, log audit.ProviderAuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = int64(len(s.records) + 1)
	s.records = append(s.records, log)
	return nil
}

func (s *InMemoryProviderAudit) FindByCorrelationID(_ context.Context, correlationID string) ([]audit.ProviderAuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.ProviderAuditLog
	for _, r := range s.records {
		if r.CorrelationID == correlationID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Records returns a copy of everything saved.
func (s *InMemoryProviderAudit) Records() []audit.ProviderAuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.ProviderAuditLog(nil), s.records...)
}
