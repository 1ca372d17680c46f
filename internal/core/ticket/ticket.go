// Package ticket defines the access ticket issued by the authentication
// service and the ports used to obtain and persist it.
package ticket

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyAuthenticated is returned by an Authenticator when the
// authority reports that the caller still holds a valid ticket.
var ErrAlreadyAuthenticated = errors.New("authority reports a valid ticket already exists")

// AccessTicket is a signed, time-limited credential for one service.
type AccessTicket struct {
	Environment string
	Service     string
	Token       string
	Sign        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Key identifies the ticket in caches and storage.
func (t AccessTicket) Key() string {
	return Key(t.Environment, t.Service)
}

// Key builds the environment:service key.
func Key(environment, service string) string {
	return environment + ":" + service
}

// Remaining returns the lifetime left at now.
func (t AccessTicket) Remaining(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// Usable reports whether the ticket outlives the renewal margin.
func (t AccessTicket) Usable(now time.Time, margin time.Duration) bool {
	return t.Remaining(now) > margin
}

// Expired reports whether the ticket can no longer be presented at all.
func (t AccessTicket) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store persists tickets keyed by environment and service.
type Store interface {
	// Get returns the stored ticket or an error marked ErrNotFound.
	Get(ctx context.Context, environment, service string) (*AccessTicket, error)
	// Save upserts the ticket.
	Save(ctx context.Context, t AccessTicket) error
}

// Signer produces a DER encoded, non-detached CMS signature over content.
type Signer interface {
	Sign(ctx context.Context, content []byte) ([]byte, error)
}

// LoginRequest is the document the authentication service expects to be signed.
type LoginRequest struct {
	UniqueID       int64
	GenerationTime time.Time
	ExpirationTime time.Time
	Service        string
}

// LoginResponse is the credential set returned by the authentication service.
type LoginResponse struct {
	Token          string
	Sign           string
	GenerationTime time.Time
	ExpirationTime time.Time
}

// Authenticator exchanges a signed login request for credentials.
type Authenticator interface {
	// Login submits the base64 CMS. It returns ErrAlreadyAuthenticated when
	// the authority refuses a second ticket for the same service.
	Login(ctx context.Context, cms string) (*LoginResponse, error)
}

// Status describes the current ticket for operators.
type Status struct {
	Environment string        `json:"environment"`
	Service     string        `json:"service"`
	Present     bool          `json:"present"`
	IssuedAt    *time.Time    `json:"issuedAt,omitempty"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
	Remaining   time.Duration `json:"remainingNanos"`
	RenewalDue  bool          `json:"renewalDue"`
}
