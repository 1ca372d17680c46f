package compliance

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

const (
	qrBaseURL  = "https://www.afip.gob.ar/fe/qr/?p="
	qrVersion  = 1
	qrAuthType = "E"
)

// QRParams are the fields of the QR payload.
type QRParams struct {
	IssueDate         time.Time
	TaxID             string
	PointOfSale       int
	DocType           int
	Number            int64
	Total             decimal.Decimal
	Currency          string
	Quote             decimal.Decimal
	ReceiverDocType   int
	ReceiverDocNumber int64
	AuthorizationCode string
}

type qrPayload struct {
	Ver        int         `json:"ver"`
	Fecha      string      `json:"fecha"`
	Cuit       int64       `json:"cuit"`
	PtoVta     int         `json:"ptoVta"`
	TipoCmp    int         `json:"tipoCmp"`
	NroCmp     int64       `json:"nroCmp"`
	Importe    json.Number `json:"importe"`
	Moneda     string      `json:"moneda"`
	Ctz        json.Number `json:"ctz"`
	TipoDocRec *int        `json:"tipoDocRec,omitempty"`
	NroDocRec  *int64      `json:"nroDocRec,omitempty"`
	TipoCodAut string      `json:"tipoCodAut"`
	CodAut     int64       `json:"codAut"`
}

// QRPayload returns the JSON document embedded in the QR URL.
func QRPayload(p QRParams) ([]byte, error) {
	cuit, err := strconv.ParseInt(p.TaxID, 10, 64)
	if err != nil || len(p.TaxID) != 11 {
		return nil, ierr.NewErrorf("tax id must be 11 digits, got %q", p.TaxID).Mark(ierr.ErrValidation)
	}
	codAut, err := strconv.ParseInt(p.AuthorizationCode, 10, 64)
	if err != nil {
		return nil, ierr.NewErrorf("authorization code %q is not numeric", p.AuthorizationCode).Mark(ierr.ErrValidation)
	}
	if p.Quote.IsZero() {
		p.Quote = decimal.NewFromInt(1)
	}
	if p.IssueDate.IsZero() {
		return nil, ierr.NewError("issue date is required").Mark(ierr.ErrValidation)
	}

	payload := qrPayload{
		Ver:        qrVersion,
		Fecha:      p.IssueDate.Format("20060102"),
		Cuit:       cuit,
		PtoVta:     p.PointOfSale,
		TipoCmp:    p.DocType,
		NroCmp:     p.Number,
		Importe:    json.Number(p.Total.StringFixed(2)),
		Moneda:     p.Currency,
		Ctz:        json.Number(p.Quote.String()),
		TipoCodAut: qrAuthType,
		CodAut:     codAut,
	}
	if p.ReceiverDocType != 0 {
		docType := p.ReceiverDocType
		docNumber := p.ReceiverDocNumber
		payload.TipoDocRec = &docType
		payload.NroDocRec = &docNumber
	}
	return json.Marshal(payload)
}

// QRURL returns the verification URL with the base64 payload.
func QRURL(p QRParams) (string, error) {
	raw, err := QRPayload(p)
	if err != nil {
		return "", err
	}
	return qrBaseURL + base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeQRURL extracts the payload from a verification URL.
func DecodeQRURL(url string) (map[string]any, error) {
	if len(url) <= len(qrBaseURL) || url[:len(qrBaseURL)] != qrBaseURL {
		return nil, ierr.NewError("not a verification URL").Mark(ierr.ErrValidation)
	}
	raw, err := base64.StdEncoding.DecodeString(url[len(qrBaseURL):])
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("decode qr payload").Mark(ierr.ErrValidation)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ierr.WithError(err).WithMessage("parse qr payload").Mark(ierr.ErrValidation)
	}
	return out, nil
}
