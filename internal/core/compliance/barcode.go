// Package compliance derives the artifacts a printed invoice must carry
// from an authorization result: the checksum barcode and the QR URL.
package compliance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

const (
	barcodeDataLen = 41
	barcodeLen     = barcodeDataLen + 1
)

var checkWeights = [...]int{3, 2, 7, 6, 5, 4, 3, 2}

// BarcodeParams are the fields encoded in the barcode.
type BarcodeParams struct {
	TaxID             string
	DocType           int
	PointOfSale       int
	AuthorizationCode string
	DueDate           time.Time
}

// Barcode returns the 42 digit barcode: tax id (11), doc type (3), point of
// sale (5), authorization code (14), due date YYYYMMDD (8) and check digit.
func Barcode(p BarcodeParams) (string, error) {
	if len(p.TaxID) != 11 || !allDigits(p.TaxID) {
		return "", ierr.NewErrorf("tax id must be 11 digits, got %q", p.TaxID).Mark(ierr.ErrValidation)
	}
	if p.DocType < 0 || p.DocType > 999 {
		return "", ierr.NewErrorf("doc type %d does not fit 3 digits", p.DocType).Mark(ierr.ErrValidation)
	}
	if p.PointOfSale < 0 || p.PointOfSale > 99999 {
		return "", ierr.NewErrorf("point of sale %d does not fit 5 digits", p.PointOfSale).Mark(ierr.ErrValidation)
	}
	if p.AuthorizationCode == "" || len(p.AuthorizationCode) > 14 || !allDigits(p.AuthorizationCode) {
		return "", ierr.NewErrorf("authorization code must be up to 14 digits, got %q", p.AuthorizationCode).Mark(ierr.ErrValidation)
	}
	if p.DueDate.IsZero() {
		return "", ierr.NewError("authorization due date is required").Mark(ierr.ErrValidation)
	}

	var b strings.Builder
	b.Grow(barcodeLen)
	b.WriteString(p.TaxID)
	fmt.Fprintf(&b, "%03d%05d", p.DocType, p.PointOfSale)
	b.WriteString(strings.Repeat("0", 14-len(p.AuthorizationCode)))
	b.WriteString(p.AuthorizationCode)
	b.WriteString(p.DueDate.Format("20060102"))

	data := b.String()
	return data + strconv.Itoa(CheckDigit(data)), nil
}

// CheckDigit computes the barcode check digit of a digit string. Digits are
// weighted right to left with the cycle 3,2,7,6,5,4,3,2.
func CheckDigit(digits string) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		digit := int(digits[len(digits)-1-i] - '0')
		sum += digit * checkWeights[i%len(checkWeights)]
	}
	return (10 - sum%10) % 10
}

// ValidateBarcode recomputes the check digit of the first 41 digits and
// compares it with the last one.
func ValidateBarcode(code string) bool {
	if len(code) != barcodeLen || !allDigits(code) {
		return false
	}
	return CheckDigit(code[:barcodeDataLen]) == int(code[barcodeDataLen]-'0')
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
