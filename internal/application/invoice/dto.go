package invoice

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/3tcapital/facturador/internal/core/invoice"
	"github.com/3tcapital/facturador/internal/core/tax"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

const dateLayout = "2006-01-02"

// DraftRequest is the input of CreateDraft.
type DraftRequest struct {
	SourceReference string          `json:"sourceReference" validate:"omitempty,max=128"`
	DocType         int             `json:"docType" validate:"required,min=1,max=999"`
	PointOfSale     int             `json:"pointOfSale" validate:"omitempty,min=1,max=99999"`
	Series          string          `json:"series" validate:"omitempty,alphanum,max=8"`
	Concept         int             `json:"concept" validate:"required,oneof=1 2 3"`
	Receiver        ReceiverRequest `json:"receiver"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	Quote           decimal.Decimal `json:"quote"`
	PricingMode     tax.PricingMode `json:"pricingMode" validate:"required,oneof=NETO FINAL_WITH_TAX"`
	IssueDate       string          `json:"issueDate" validate:"omitempty,datetime=2006-01-02"`
	ServiceFrom     string          `json:"serviceFrom" validate:"omitempty,datetime=2006-01-02"`
	ServiceTo       string          `json:"serviceTo" validate:"omitempty,datetime=2006-01-02"`
	PaymentDue      string          `json:"paymentDue" validate:"omitempty,datetime=2006-01-02"`
	OtherCharges    decimal.Decimal `json:"otherCharges"`
	Lines           []LineRequest   `json:"lines" validate:"required,min=1,dive"`
}

// ReceiverRequest identifies the buyer. Every field is optional.
type ReceiverRequest struct {
	DocType      int    `json:"docType" validate:"omitempty,oneof=80 86 96 99"`
	DocNumber    string `json:"docNumber" validate:"omitempty,numeric,max=11"`
	TaxCondition int    `json:"taxCondition" validate:"omitempty,oneof=1 4 5 6"`
}

// LineRequest is one item as submitted. Rate accepts any spelling
// NormalizeRateCode understands.
type LineRequest struct {
	Description string          `json:"description" validate:"required,max=250"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Rate        string          `json:"rate" validate:"required"`
}

// Validate runs the struct tags and the cross-field rules.
func (r *DraftRequest) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		details := map[string]any{}
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, fe := range validateErrs {
				details[fe.Namespace()] = fe.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}

	for i, l := range r.Lines {
		if !l.Quantity.IsPositive() {
			return ierr.NewErrorf("line %d: quantity must be positive", i+1).Mark(ierr.ErrValidation)
		}
		if l.UnitPrice.IsNegative() {
			return ierr.NewErrorf("line %d: unit price must not be negative", i+1).Mark(ierr.ErrValidation)
		}
	}
	if r.OtherCharges.IsNegative() {
		return ierr.NewError("other charges must not be negative").Mark(ierr.ErrValidation)
	}
	if r.Quote.IsNegative() {
		return ierr.NewError("quote must not be negative").Mark(ierr.ErrValidation)
	}

	if r.Concept == invoice.ConceptServices || r.Concept == invoice.ConceptProductsAndServices {
		if r.ServiceFrom == "" || r.ServiceTo == "" || r.PaymentDue == "" {
			return ierr.NewError("service invoices require serviceFrom, serviceTo and paymentDue").
				WithHint("dates use the YYYY-MM-DD layout").
				Mark(ierr.ErrValidation)
		}
		from, _ := time.Parse(dateLayout, r.ServiceFrom)
		to, _ := time.Parse(dateLayout, r.ServiceTo)
		if from.After(to) {
			return ierr.NewError("serviceFrom must not be after serviceTo").Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// internal reports whether the draft is numbered in a local series.
func (r *DraftRequest) internal() bool {
	return strings.TrimSpace(r.Series) != ""
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
