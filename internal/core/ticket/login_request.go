package ticket

import (
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

const (
	// generationTime is backdated by this much to tolerate server clock skew.
	clockSkewAllowance = 10 * time.Minute
	loginTimeLayout    = "2006-01-02T15:04:05-07:00"
)

// NewLoginRequest builds the request for service issued at now and valid for lifetime.
func NewLoginRequest(service string, now time.Time, lifetime time.Duration) LoginRequest {
	return LoginRequest{
		UniqueID:       now.Unix(),
		GenerationTime: now.Add(-clockSkewAllowance),
		ExpirationTime: now.Add(lifetime),
		Service:        service,
	}
}

// Encode renders the loginTicketRequest document that gets signed.
func (r LoginRequest) Encode() ([]byte, error) {
	if strings.TrimSpace(r.Service) == "" {
		return nil, ierr.NewError("login request needs a service name").Mark(ierr.ErrConfiguration)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")
	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(strconv.FormatInt(r.UniqueID, 10))
	header.CreateElement("generationTime").SetText(r.GenerationTime.Format(loginTimeLayout))
	header.CreateElement("expirationTime").SetText(r.ExpirationTime.Format(loginTimeLayout))
	root.CreateElement("service").SetText(r.Service)

	return doc.WriteToBytes()
}
