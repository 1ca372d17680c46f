// Package audit holds the two audit trails: raw authority exchanges and
// per-invoice authorization attempts.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProviderAuditLog is a sanitized record of one HTTP exchange with the
// authority's web services.
type ProviderAuditLog struct {
	ID              int64
	CorrelationID   string
	Provider        string
	Operation       string
	RequestMethod   string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	DurationMs      int64
	ErrorMessage    string
	CreatedAt       time.Time
}

// Repository persists provider exchanges.
type Repository interface {
	Save(ctx context.Context, log ProviderAuditLog) error
	// FindByCorrelationID returns every exchange made while serving one request.
	FindByCorrelationID(ctx context.Context, correlationID string) ([]ProviderAuditLog, error)
}

// Outcome of an authorization attempt.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeFailed   Outcome = "FAILED"
	OutcomeLocal    Outcome = "LOCAL"
)

// Methods recorded in the authorization log.
const (
	MethodRequestAuthorization = "FECAESolicitar"
	MethodLocalSeries          = "LocalSeries"
	MethodReprocess            = "Reprocess"
)

// AuthorizationLogEntry is one append-only record of an authorization
// attempt on an invoice.
type AuthorizationLogEntry struct {
	ID            string    `json:"id"`
	InvoiceID     uuid.UUID `json:"invoiceId"`
	Method        string    `json:"method"`
	Outcome       Outcome   `json:"outcome"`
	Number        *int64    `json:"number,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LogRepository appends and lists authorization attempts. Entries are
// never updated or deleted.
type LogRepository interface {
	Append(ctx context.Context, entry AuthorizationLogEntry) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]AuthorizationLogEntry, error)
}
