package afip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

const (
	wsaaNS = "http://wsaa.view.sua.dvadac.desein.afip.gov"

	faultAlreadyAuthenticated = "alreadyAuthenticated"
)

// WSAA is the authentication service client.
type WSAA struct {
	url    string
	client Doer
	log    *slog.Logger
}

var _ ticket.Authenticator = (*WSAA)(nil)

// NewWSAA creates an authentication client posting to url.
func NewWSAA(url string, client Doer, log *slog.Logger) *WSAA {
	return &WSAA{url: url, client: client, log: log}
}

// Login submits the base64 CMS to loginCms and parses the nested ticket response.
func (w *WSAA) Login(ctx context.Context, cms string) (*ticket.LoginResponse, error) {
	doc, body := newEnvelope("wsaa", wsaaNS)
	op := body.CreateElement("wsaa:loginCms")
	addText(op, "wsaa:in0", cms)

	resBody, err := call(ctx, w.client, w.url, "", doc)
	if err != nil {
		var fault *Fault
		if errors.As(err, &fault) {
			if fault.Is(faultAlreadyAuthenticated) {
				w.log.Warn("Authentication service reports a valid ticket already exists",
					"fault_code", fault.Code,
				)
				return nil, fmt.Errorf("%w: %s", ticket.ErrAlreadyAuthenticated, fault.String)
			}
			return nil, ierr.WithError(err).
				WithHint("check the certificate is associated with the service in the authority portal").
				Mark(ierr.ErrTicket)
		}
		return nil, err
	}

	inner := childText(resBody, "loginCmsReturn")
	if inner == "" {
		return nil, ierr.NewError("loginCms response has no loginCmsReturn").Mark(ierr.ErrTicket)
	}
	return ParseLoginResponse([]byte(inner))
}

// ParseLoginResponse reads the loginTicketResponse document carried inside loginCmsReturn.
func ParseLoginResponse(data []byte) (*ticket.LoginResponse, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, ierr.WithError(err).WithMessage("parse loginTicketResponse").Mark(ierr.ErrTicket)
	}

	root := doc.Root()
	if root == nil || root.Tag != "loginTicketResponse" {
		return nil, ierr.NewError("unexpected ticket response document").Mark(ierr.ErrTicket)
	}

	res := &ticket.LoginResponse{
		Token: childText(root, "token"),
		Sign:  childText(root, "sign"),
	}
	if res.Token == "" || res.Sign == "" {
		return nil, ierr.NewError("ticket response is missing token or sign").Mark(ierr.ErrTicket)
	}

	var err error
	if res.ExpirationTime, err = parseTRATime(childText(root, "expirationTime")); err != nil {
		return nil, ierr.WithError(err).WithMessage("expirationTime").Mark(ierr.ErrTicket)
	}
	if generated := childText(root, "generationTime"); generated != "" {
		if res.GenerationTime, err = parseTRATime(generated); err != nil {
			return nil, ierr.WithError(err).WithMessage("generationTime").Mark(ierr.ErrTicket)
		}
	}

	return res, nil
}

func parseTRATime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}
