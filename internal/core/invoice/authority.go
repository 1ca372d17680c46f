package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/3tcapital/facturador/internal/core/tax"
)

// ResultCode is the authority's verdict.
type ResultCode string

const (
	ResultApproved ResultCode = "A"
	ResultRejected ResultCode = "R"
	// ResultPartial only occurs for multi-document batches.
	ResultPartial ResultCode = "P"
)

// Observation is a coded remark returned with a result.
type Observation struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Authorization is the authority's response attached to an invoice.
type Authorization struct {
	Code         string        `json:"code"`
	DueDate      *time.Time    `json:"dueDate,omitempty"`
	Result       ResultCode    `json:"result"`
	Observations []Observation `json:"observations,omitempty"`
	ProcessedAt  time.Time     `json:"processedAt"`
}

// Approved reports whether the document got an authorization code.
func (a Authorization) Approved() bool {
	return a.Result == ResultApproved && a.Code != ""
}

// Credentials are presented with every authorization service call.
type Credentials struct {
	Token string
	Sign  string
	TaxID string
}

// AuthorizationRequest is the canonical single-document submission.
type AuthorizationRequest struct {
	PointOfSale          int
	DocType              int
	Concept              int
	Number               int64
	IssueDate            time.Time
	ReceiverDocType      int
	ReceiverDocNumber    int64
	ReceiverTaxCondition int
	Currency             string
	Quote                decimal.Decimal
	Totals               tax.Totals
	ServiceFrom          *time.Time
	ServiceTo            *time.Time
	PaymentDue           *time.Time
}

// NewAuthorizationRequest builds the submission for a numbered draft.
func NewAuthorizationRequest(inv *Invoice) AuthorizationRequest {
	req := AuthorizationRequest{
		PointOfSale:          inv.PointOfSale,
		DocType:              inv.DocType,
		Concept:              inv.Concept,
		IssueDate:            inv.IssueDate,
		ReceiverDocType:      inv.Receiver.DocType,
		ReceiverDocNumber:    inv.Receiver.DocNumber,
		ReceiverTaxCondition: inv.Receiver.TaxCondition,
		Currency:             inv.Currency,
		Quote:                inv.Quote,
		Totals:               inv.Totals,
	}
	if inv.Number != nil {
		req.Number = *inv.Number
	}
	if inv.IncludesServices() {
		req.ServiceFrom = inv.ServiceFrom
		req.ServiceTo = inv.ServiceTo
		req.PaymentDue = inv.PaymentDue
	}
	return req
}

// Authority is the external authorization service.
type Authority interface {
	// Authorize submits one document. A rejection is a result, not an error.
	Authorize(ctx context.Context, req AuthorizationRequest, creds Credentials) (*Authorization, error)
	// LastAuthorized returns the highest number the authority has
	// authorized for the point of sale and doc type.
	LastAuthorized(ctx context.Context, pointOfSale, docType int, creds Credentials) (int64, error)
	// Ping checks the service's own health endpoint.
	Ping(ctx context.Context) error
}
