package tax

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

// PricingMode tells the calculator whether unit prices include tax.
type PricingMode string

const (
	PricingNet          PricingMode = "NETO"
	PricingFinalWithTax PricingMode = "FINAL_WITH_TAX"
)

// Tolerance is the maximum difference accepted between header and line sums.
var Tolerance = decimal.RequireFromString("0.01")

// Valid reports whether the mode is known.
func (m PricingMode) Valid() bool {
	return m == PricingNet || m == PricingFinalWithTax
}

// LineInput is the pricing data of one line before computation.
type LineInput struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	RateCode  RateCode
}

// LineAmounts holds the computed net and tax of one line.
type LineAmounts struct {
	RateCode RateCode
	Net      decimal.Decimal
	Tax      decimal.Decimal
}

// Bucket is the per-rate aggregate sent to the authority.
type Bucket struct {
	Code   RateCode        `json:"code"`
	Base   decimal.Decimal `json:"base"`
	Amount decimal.Decimal `json:"amount"`
}

// Totals are the invoice header amounts.
type Totals struct {
	TaxedNet     decimal.Decimal `json:"taxedNet"`
	ExemptNet    decimal.Decimal `json:"exemptNet"`
	TaxTotal     decimal.Decimal `json:"taxTotal"`
	OtherCharges decimal.Decimal `json:"otherCharges"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
	Buckets      []Bucket        `json:"buckets"`
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeLine applies the pricing mode to a single line. Rounding is
// half-up to two places at every step.
func ComputeLine(mode PricingMode, in LineInput) (LineAmounts, error) {
	rate, err := in.RateCode.Rate()
	if err != nil {
		return LineAmounts{}, err
	}
	if in.Quantity.IsNegative() || in.UnitPrice.IsNegative() {
		return LineAmounts{}, ierr.NewError("quantity and unit price must not be negative").
			Mark(ierr.ErrValidation)
	}

	out := LineAmounts{RateCode: in.RateCode}
	switch mode {
	case PricingNet:
		out.Net = round2(in.Quantity.Mul(in.UnitPrice))
		out.Tax = round2(out.Net.Mul(rate))
	case PricingFinalWithTax:
		netUnit := round2(in.UnitPrice.Div(decimal.NewFromInt(1).Add(rate)))
		out.Net = round2(in.Quantity.Mul(netUnit))
		out.Tax = round2(in.Quantity.Mul(in.UnitPrice).Sub(out.Net))
	default:
		return LineAmounts{}, ierr.NewErrorf("unknown pricing mode %q", string(mode)).
			Mark(ierr.ErrValidation)
	}
	return out, nil
}

// Aggregate folds computed lines into header totals. Exempt lines go to
// ExemptNet and never produce a bucket. Buckets are sorted by code.
func Aggregate(lines []LineAmounts, otherCharges decimal.Decimal) Totals {
	t := Totals{
		TaxedNet:     decimal.Zero,
		ExemptNet:    decimal.Zero,
		TaxTotal:     decimal.Zero,
		OtherCharges: round2(otherCharges),
	}

	taxed := lo.Filter(lines, func(l LineAmounts, _ int) bool { return !l.RateCode.IsExempt() })
	for _, l := range lines {
		if l.RateCode.IsExempt() {
			t.ExemptNet = t.ExemptNet.Add(l.Net)
		}
	}

	groups := lo.GroupBy(taxed, func(l LineAmounts) RateCode { return l.RateCode })
	codes := lo.Keys(groups)
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	t.Buckets = make([]Bucket, 0, len(codes))
	for _, code := range codes {
		b := Bucket{Code: code, Base: decimal.Zero, Amount: decimal.Zero}
		for _, l := range groups[code] {
			b.Base = b.Base.Add(l.Net)
			b.Amount = b.Amount.Add(l.Tax)
		}
		t.TaxedNet = t.TaxedNet.Add(b.Base)
		t.TaxTotal = t.TaxTotal.Add(b.Amount)
		t.Buckets = append(t.Buckets, b)
	}

	t.GrandTotal = round2(t.TaxedNet.Add(t.ExemptNet).Add(t.TaxTotal).Add(t.OtherCharges))
	return t
}

// Compute runs ComputeLine over every input and aggregates the result.
func Compute(mode PricingMode, inputs []LineInput, otherCharges decimal.Decimal) ([]LineAmounts, Totals, error) {
	if len(inputs) == 0 {
		return nil, Totals{}, ierr.NewError("invoice must have at least one line").Mark(ierr.ErrValidation)
	}
	lines := make([]LineAmounts, 0, len(inputs))
	for i, in := range inputs {
		l, err := ComputeLine(mode, in)
		if err != nil {
			return nil, Totals{}, ierr.WithError(err).WithMessagef("line %d", i+1).Mark(ierr.ErrValidation)
		}
		lines = append(lines, l)
	}
	return lines, Aggregate(lines, otherCharges), nil
}

// Reconcile checks persisted line amounts against the header. Any header
// field that drifts more than Tolerance from the line sums is a validation
// error; nothing is corrected.
func Reconcile(lines []LineAmounts, header Totals) error {
	expected := Aggregate(lines, header.OtherCharges)

	checks := []struct {
		field  string
		header decimal.Decimal
		lines  decimal.Decimal
	}{
		{"taxed_net", header.TaxedNet, expected.TaxedNet},
		{"exempt_net", header.ExemptNet, expected.ExemptNet},
		{"tax_total", header.TaxTotal, expected.TaxTotal},
		{"grand_total", header.GrandTotal, expected.GrandTotal},
	}
	for _, c := range checks {
		if c.header.Sub(c.lines).Abs().GreaterThan(Tolerance) {
			return ierr.NewErrorf("%s mismatch: header %s, lines %s", c.field, c.header.StringFixed(2), c.lines.StringFixed(2)).
				WithReportableDetails(map[string]any{"field": c.field}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
