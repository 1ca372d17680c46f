package tax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

// RateCode is the authority's VAT rate identifier.
type RateCode int

const (
	RateExempt RateCode = 3
	Rate2_5    RateCode = 9
	Rate5      RateCode = 8
	Rate10_5   RateCode = 4
	Rate21     RateCode = 5
	Rate27     RateCode = 6
)

// rateTable is the single source of truth for rate codes.
var rateTable = map[RateCode]decimal.Decimal{
	RateExempt: decimal.Zero,
	Rate2_5:    decimal.RequireFromString("0.025"),
	Rate5:      decimal.RequireFromString("0.05"),
	Rate10_5:   decimal.RequireFromString("0.105"),
	Rate21:     decimal.RequireFromString("0.21"),
	Rate27:     decimal.RequireFromString("0.27"),
}

var exemptLabels = map[string]struct{}{
	"exento":     {},
	"exenta":     {},
	"exempt":     {},
	"no gravado": {},
}

// Rate returns the fractional rate for a code.
func (c RateCode) Rate() (decimal.Decimal, error) {
	r, ok := rateTable[c]
	if !ok {
		return decimal.Zero, ierr.NewErrorf("unknown tax rate code %d", int(c)).
			WithHint("use one of 3, 4, 5, 6, 8, 9").
			Mark(ierr.ErrValidation)
	}
	return r, nil
}

// IsExempt reports whether the code lands in the exempt bucket.
func (c RateCode) IsExempt() bool {
	return c == RateExempt
}

// Valid reports whether the code is in the rate table.
func (c RateCode) Valid() bool {
	_, ok := rateTable[c]
	return ok
}

// Percent renders the rate as a percentage, e.g. "10.5".
func (c RateCode) Percent() string {
	r, ok := rateTable[c]
	if !ok {
		return ""
	}
	return r.Mul(decimal.NewFromInt(100)).String()
}

// NormalizeRateCode maps any accepted spelling of a rate to its code.
// Accepted: authority codes ("3", "05"), percentages ("21", "21%", "10,5",
// "10.5") and exempt labels. Integers between 1 and 9 are read as codes;
// everything else is read as a percentage. A bare "5" is both code 5 (21%)
// and 5 percent, so it is rejected; callers write "05" or "5%".
func NormalizeRateCode(raw string) (RateCode, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, ierr.NewError("tax rate code is required").Mark(ierr.ErrValidation)
	}
	if _, ok := exemptLabels[s]; ok {
		return RateExempt, nil
	}

	isPercent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")

	if !isPercent && s == "5" {
		return 0, ierr.NewErrorf("tax rate %q is ambiguous", raw).
			WithHint(`write "05" for code 5 (21%) or "5%" for five percent`).
			Mark(ierr.ErrValidation)
	}
	if !isPercent && !strings.Contains(s, ".") {
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 9 {
			code := RateCode(n)
			if code.Valid() {
				return code, nil
			}
			return 0, unknownRate(raw)
		}
	}

	pct, err := decimal.NewFromString(s)
	if err != nil {
		return 0, unknownRate(raw)
	}
	frac := pct.Div(decimal.NewFromInt(100))
	for code, rate := range rateTable {
		if rate.Equal(frac) {
			return code, nil
		}
	}
	return 0, unknownRate(raw)
}

func unknownRate(raw string) error {
	return ierr.WithError(fmt.Errorf("unknown tax rate %q", raw)).
		WithHint("accepted: 0, 2.5, 5, 10.5, 21, 27 percent or codes 3, 4, 5, 6, 8, 9").
		Mark(ierr.ErrValidation)
}
