package invoice

import (
	"context"

	"github.com/3tcapital/facturador/internal/core/invoice"
	"github.com/3tcapital/facturador/internal/core/ticket"
)

// TicketSource hands out access tickets for an environment.
type TicketSource interface {
	GetValidTicket(ctx context.Context, environment string) (ticket.AccessTicket, error)
}

// Gateway presents the issuer's credentials on every authority call. It
// also feeds the sequence allocator with the authority's last numbers.
type Gateway struct {
	tickets     TicketSource
	authority   invoice.Authority
	environment string
	taxID       string
}

// NewGateway creates a gateway for one environment and issuer.
func NewGateway(tickets TicketSource, authority invoice.Authority, environment, taxID string) *Gateway {
	return &Gateway{
		tickets:     tickets,
		authority:   authority,
		environment: environment,
		taxID:       taxID,
	}
}

// TaxID returns the issuer's tax id.
func (g *Gateway) TaxID() string {
	return g.taxID
}

func (g *Gateway) credentials(ctx context.Context) (invoice.Credentials, error) {
	t, err := g.tickets.GetValidTicket(ctx, g.environment)
	if err != nil {
		return invoice.Credentials{}, err
	}
	return invoice.Credentials{Token: t.Token, Sign: t.Sign, TaxID: g.taxID}, nil
}

// Authorize submits one document.
func (g *Gateway) Authorize(ctx context.Context, req invoice.AuthorizationRequest) (*invoice.Authorization, error) {
	creds, err := g.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return g.authority.Authorize(ctx, req, creds)
}

// LastAuthorized returns the authority's last number for a point of sale
// and doc type.
func (g *Gateway) LastAuthorized(ctx context.Context, pointOfSale, docType int) (int64, error) {
	creds, err := g.credentials(ctx)
	if err != nil {
		return 0, err
	}
	return g.authority.LastAuthorized(ctx, pointOfSale, docType, creds)
}

// Ping checks the authority's health endpoint. It needs no credentials.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.authority.Ping(ctx)
}
