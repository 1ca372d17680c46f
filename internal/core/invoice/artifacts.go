package invoice

import (
	"github.com/3tcapital/facturador/internal/core/compliance"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Artifacts are the printable proofs of an authorized invoice.
type Artifacts struct {
	Barcode string `json:"barcode"`
	QRURL   string `json:"qrUrl"`
}

// BuildArtifacts derives the barcode and QR URL of an externally authorized
// invoice issued by taxID.
func BuildArtifacts(inv *Invoice, taxID string) (Artifacts, error) {
	if inv.State != StateAuthorizedExternal || inv.Authorization == nil || inv.Number == nil {
		return Artifacts{}, ierr.NewErrorf("invoice in state %s has no authorization artifacts", inv.State).
			WithHint("artifacts exist only for AUTHORIZED_EXTERNAL invoices").
			Mark(ierr.ErrInvalidState)
	}
	auth := inv.Authorization
	if auth.DueDate == nil {
		return Artifacts{}, ierr.NewError("authorization has no due date").Mark(ierr.ErrValidation)
	}

	barcode, err := compliance.Barcode(compliance.BarcodeParams{
		TaxID:             taxID,
		DocType:           inv.DocType,
		PointOfSale:       inv.PointOfSale,
		AuthorizationCode: auth.Code,
		DueDate:           *auth.DueDate,
	})
	if err != nil {
		return Artifacts{}, err
	}

	qr, err := compliance.QRURL(compliance.QRParams{
		IssueDate:         inv.IssueDate,
		TaxID:             taxID,
		PointOfSale:       inv.PointOfSale,
		DocType:           inv.DocType,
		Number:            *inv.Number,
		Total:             inv.Totals.GrandTotal,
		Currency:          inv.Currency,
		Quote:             inv.Quote,
		ReceiverDocType:   inv.Receiver.DocType,
		ReceiverDocNumber: inv.Receiver.DocNumber,
		AuthorizationCode: auth.Code,
	})
	if err != nil {
		return Artifacts{}, err
	}
	return Artifacts{Barcode: barcode, QRURL: qr}, nil
}
