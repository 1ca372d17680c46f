package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute_MixedTaxedAndExempt(t *testing.T) {
	inputs := []LineInput{
		{Quantity: d("2"), UnitPrice: d("100"), RateCode: Rate21},
		{Quantity: d("1"), UnitPrice: d("50"), RateCode: RateExempt},
	}

	lines, totals, err := Compute(PricingNet, inputs, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "200.00", totals.TaxedNet.StringFixed(2))
	assert.Equal(t, "50.00", totals.ExemptNet.StringFixed(2))
	assert.Equal(t, "42.00", totals.TaxTotal.StringFixed(2))
	assert.Equal(t, "292.00", totals.GrandTotal.StringFixed(2))
	require.Len(t, totals.Buckets, 1)
	assert.Equal(t, Rate21, totals.Buckets[0].Code)
	assert.Equal(t, "0.00", lines[1].Tax.StringFixed(2))
}

func TestComputeLine_FinalWithTax(t *testing.T) {
	got, err := ComputeLine(PricingFinalWithTax, LineInput{Quantity: d("3"), UnitPrice: d("121"), RateCode: Rate21})
	require.NoError(t, err)
	assert.Equal(t, "300.00", got.Net.StringFixed(2))
	assert.Equal(t, "63.00", got.Tax.StringFixed(2))
}

func TestComputeLine_RoundsEachStep(t *testing.T) {
	// 0.333 * 3 = 0.999 -> 1.00 net; 1.00 * 0.105 = 0.105 -> 0.11 tax
	got, err := ComputeLine(PricingNet, LineInput{Quantity: d("3"), UnitPrice: d("0.333"), RateCode: Rate10_5})
	require.NoError(t, err)
	assert.Equal(t, "1.00", got.Net.StringFixed(2))
	assert.Equal(t, "0.11", got.Tax.StringFixed(2))
}

func TestComputeLine_ModesAgree(t *testing.T) {
	quantities := []string{"1", "2", "3", "7", "12.5"}
	prices := []string{"0.10", "1", "9.99", "100", "1234.56"}
	codes := []RateCode{RateExempt, Rate2_5, Rate5, Rate10_5, Rate21, Rate27}

	for _, q := range quantities {
		for _, p := range prices {
			for _, code := range codes {
				rate, err := code.Rate()
				require.NoError(t, err)
				net := d(p)
				gross := net.Mul(decimal.NewFromInt(1).Add(rate))

				a, err := ComputeLine(PricingNet, LineInput{Quantity: d(q), UnitPrice: net, RateCode: code})
				require.NoError(t, err)
				b, err := ComputeLine(PricingFinalWithTax, LineInput{Quantity: d(q), UnitPrice: gross, RateCode: code})
				require.NoError(t, err)

				// Per-unit rounding in FINAL_WITH_TAX scales with quantity.
				tol := Tolerance.Mul(d(q)).Add(Tolerance)
				assert.True(t, a.Net.Sub(b.Net).Abs().LessThanOrEqual(tol), "net q=%s p=%s code=%d: %s vs %s", q, p, code, a.Net, b.Net)
				assert.True(t, a.Net.Add(a.Tax).Sub(b.Net.Add(b.Tax)).Abs().LessThanOrEqual(tol), "total q=%s p=%s code=%d", q, p, code)
			}
		}
	}
}

func TestComputeLine_ModesAgreeSingleUnit(t *testing.T) {
	for _, code := range []RateCode{Rate2_5, Rate5, Rate10_5, Rate21, Rate27} {
		rate, _ := code.Rate()
		net := d("83.47")
		gross := net.Mul(decimal.NewFromInt(1).Add(rate))

		a, err := ComputeLine(PricingNet, LineInput{Quantity: d("1"), UnitPrice: net, RateCode: code})
		require.NoError(t, err)
		b, err := ComputeLine(PricingFinalWithTax, LineInput{Quantity: d("1"), UnitPrice: gross, RateCode: code})
		require.NoError(t, err)

		assert.True(t, a.Net.Sub(b.Net).Abs().LessThanOrEqual(Tolerance))
		assert.True(t, a.Tax.Sub(b.Tax).Abs().LessThanOrEqual(Tolerance))
	}
}

func TestComputeLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		mode PricingMode
		in   LineInput
	}{
		{name: "unknown code", mode: PricingNet, in: LineInput{Quantity: d("1"), UnitPrice: d("1"), RateCode: 7}},
		{name: "unknown mode", mode: "GROSS", in: LineInput{Quantity: d("1"), UnitPrice: d("1"), RateCode: Rate21}},
		{name: "negative price", mode: PricingNet, in: LineInput{Quantity: d("1"), UnitPrice: d("-1"), RateCode: Rate21}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeLine(tt.mode, tt.in)
			require.Error(t, err)
			assert.True(t, ierr.IsValidation(err))
		})
	}
}

func TestAggregate_BucketsSortedByCode(t *testing.T) {
	lines := []LineAmounts{
		{RateCode: Rate27, Net: d("10"), Tax: d("2.70")},
		{RateCode: Rate10_5, Net: d("10"), Tax: d("1.05")},
		{RateCode: Rate21, Net: d("10"), Tax: d("2.10")},
		{RateCode: Rate10_5, Net: d("5"), Tax: d("0.53")},
	}

	totals := Aggregate(lines, d("1.50"))

	require.Len(t, totals.Buckets, 3)
	assert.Equal(t, Rate10_5, totals.Buckets[0].Code)
	assert.Equal(t, Rate21, totals.Buckets[1].Code)
	assert.Equal(t, Rate27, totals.Buckets[2].Code)
	assert.Equal(t, "15.00", totals.Buckets[0].Base.StringFixed(2))
	assert.Equal(t, "1.58", totals.Buckets[0].Amount.StringFixed(2))
	assert.Equal(t, "37.88", totals.GrandTotal.StringFixed(2))
}

func TestReconcile(t *testing.T) {
	lines := []LineAmounts{
		{RateCode: Rate21, Net: d("200"), Tax: d("42")},
		{RateCode: RateExempt, Net: d("50"), Tax: decimal.Zero},
	}
	header := Aggregate(lines, decimal.Zero)

	t.Run("matching header", func(t *testing.T) {
		assert.NoError(t, Reconcile(lines, header))
	})

	t.Run("within tolerance", func(t *testing.T) {
		h := header
		h.GrandTotal = h.GrandTotal.Add(d("0.01"))
		assert.NoError(t, Reconcile(lines, h))
	})

	t.Run("mismatch", func(t *testing.T) {
		h := header
		h.TaxTotal = h.TaxTotal.Add(d("0.02"))
		err := Reconcile(lines, h)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
		assert.Contains(t, err.Error(), "tax_total")
	})
}
