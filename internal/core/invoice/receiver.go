package invoice

import (
	"strconv"

	"github.com/3tcapital/facturador/internal/core/compliance"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Receiver document types.
const (
	DocTypeCUIT         = 80
	DocTypeCUIL         = 86
	DocTypeDNI          = 96
	DocTypeUnidentified = 99
)

// Receiver VAT conditions.
const (
	TaxConditionRegistered    = 1
	TaxConditionExempt        = 4
	TaxConditionFinalConsumer = 5
	TaxConditionMonotributo   = 6
)

// Document types issued by the authority, grouped by letter.
var (
	docTypesA = map[int]struct{}{1: {}, 2: {}, 3: {}}
	docTypesB = map[int]struct{}{6: {}, 7: {}, 8: {}}
	docTypesC = map[int]struct{}{11: {}, 12: {}, 13: {}}
)

// KnownDocType reports whether docType is an authority-numbered document.
func KnownDocType(docType int) bool {
	_, a := docTypesA[docType]
	_, b := docTypesB[docType]
	_, c := docTypesC[docType]
	return a || b || c
}

// IsLetterA reports whether the document is issued to registered taxpayers.
func IsLetterA(docType int) bool {
	_, ok := docTypesA[docType]
	return ok
}

// ResolveReceiver applies the receiver policy. The raw document number may
// be empty. A receiver without a valid identifier becomes the unidentified
// consumer (99/0). A missing tax condition is inferred from the document
// type: CUIT receivers are registered, everyone else is a final consumer.
func ResolveReceiver(docType int, rawNumber string, taxCondition int) (Receiver, error) {
	r := Receiver{DocType: docType, TaxCondition: taxCondition}

	switch docType {
	case DocTypeCUIT, DocTypeCUIL:
		if !compliance.ValidTaxID(rawNumber) {
			r.DocType, r.DocNumber = DocTypeUnidentified, 0
		} else {
			r.DocNumber, _ = strconv.ParseInt(rawNumber, 10, 64)
		}
	case DocTypeDNI:
		n, err := strconv.ParseInt(rawNumber, 10, 64)
		if err != nil || n <= 0 || len(rawNumber) > 8 {
			r.DocType, r.DocNumber = DocTypeUnidentified, 0
		} else {
			r.DocNumber = n
		}
	case DocTypeUnidentified, 0:
		r.DocType, r.DocNumber = DocTypeUnidentified, 0
	default:
		return Receiver{}, ierr.NewErrorf("unsupported receiver document type %d", docType).
			Mark(ierr.ErrValidation)
	}

	if r.TaxCondition == 0 {
		r.TaxCondition = inferTaxCondition(r.DocType)
	}
	return r, nil
}

func inferTaxCondition(docType int) int {
	if docType == DocTypeCUIT {
		return TaxConditionRegistered
	}
	return TaxConditionFinalConsumer
}

// ValidateReceiverFor checks the receiver fields the document letter demands.
func ValidateReceiverFor(docType int, r Receiver) error {
	if !IsLetterA(docType) {
		return nil
	}
	if r.DocType != DocTypeCUIT || r.DocNumber == 0 {
		return ierr.NewError("letter A documents require a receiver with a valid CUIT").
			WithHint("set receiver.docType to 80 and a valid 11 digit number").
			Mark(ierr.ErrValidation)
	}
	if r.TaxCondition != TaxConditionRegistered && r.TaxCondition != TaxConditionMonotributo {
		return ierr.NewErrorf("receiver tax condition %d cannot receive letter A documents", r.TaxCondition).
			Mark(ierr.ErrValidation)
	}
	return nil
}
