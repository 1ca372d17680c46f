// Package invoice holds the invoice aggregate, its state machine and the
// ports the authorization workflow depends on.
package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/3tcapital/facturador/internal/core/sequence"
	"github.com/3tcapital/facturador/internal/core/tax"
)

// Concept codes accepted by the authority.
const (
	ConceptProducts            = 1
	ConceptServices            = 2
	ConceptProductsAndServices = 3
)

// DefaultCurrency is the local currency code.
const DefaultCurrency = "PES"

// Line is one priced item with its computed amounts.
type Line struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	RateCode    tax.RateCode    `json:"rateCode"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
}

// Amounts returns the computed part of the line.
func (l Line) Amounts() tax.LineAmounts {
	return tax.LineAmounts{RateCode: l.RateCode, Net: l.NetAmount, Tax: l.TaxAmount}
}

// Receiver identifies the buyer.
type Receiver struct {
	DocType      int   `json:"docType"`
	DocNumber    int64 `json:"docNumber"`
	TaxCondition int   `json:"taxCondition"`
}

// Invoice is the aggregate persisted across the authorization workflow.
type Invoice struct {
	ID              uuid.UUID       `json:"id"`
	SourceReference *string         `json:"sourceReference,omitempty"`
	DocType         int             `json:"docType"`
	PointOfSale     int             `json:"pointOfSale"`
	Series          string          `json:"series,omitempty"`
	Concept         int             `json:"concept"`
	Receiver        Receiver        `json:"receiver"`
	Currency        string          `json:"currency"`
	Quote           decimal.Decimal `json:"quote"`
	PricingMode     tax.PricingMode `json:"pricingMode"`
	IssueDate       time.Time       `json:"issueDate"`
	ServiceFrom     *time.Time      `json:"serviceFrom,omitempty"`
	ServiceTo       *time.Time      `json:"serviceTo,omitempty"`
	PaymentDue      *time.Time      `json:"paymentDue,omitempty"`
	Lines           []Line          `json:"lines"`
	Totals          tax.Totals      `json:"totals"`
	State           State           `json:"state"`
	Number          *int64          `json:"number,omitempty"`
	Authorization   *Authorization  `json:"authorization,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RequiresExternalAuthorization reports whether the authority must
// authorize the document. Documents numbered in a local series do not.
func (inv *Invoice) RequiresExternalAuthorization() bool {
	return inv.Series == ""
}

// Scope returns the numbering scope of the invoice.
func (inv *Invoice) Scope() sequence.Scope {
	if inv.RequiresExternalAuthorization() {
		return sequence.ExternalScope(inv.PointOfSale, inv.DocType)
	}
	return sequence.InternalScope(inv.Series)
}

// LineAmounts returns the computed amounts of every line.
func (inv *Invoice) LineAmounts() []tax.LineAmounts {
	out := make([]tax.LineAmounts, len(inv.Lines))
	for i, l := range inv.Lines {
		out[i] = l.Amounts()
	}
	return out
}

// IncludesServices reports whether service period dates are required.
func (inv *Invoice) IncludesServices() bool {
	return inv.Concept == ConceptServices || inv.Concept == ConceptProductsAndServices
}
