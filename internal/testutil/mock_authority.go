package testutil

import (
	"context"
	"sync/atomic"

	"github.com/3tcapital/facturador/internal/core/invoice"
	"github.com/3tcapital/facturador/internal/core/ticket"
)

// MockAuthority is a mock implementation of invoice.Authority for testing.
type MockAuthority struct {
	AuthorizeFunc      func(ctx context.Context, req invoice.AuthorizationRequest, creds invoice.Credentials) (*invoice.Authorization, error)
	LastAuthorizedFunc func(ctx context.Context, pointOfSale, docType int, creds invoice.Credentials) (int64, error)
	PingFunc           func(ctx context.Context) error

	AuthorizeCalls atomic.Int32
}

// Authorize calls the mock function if set, otherwise approves with a fixed code.
func (m *MockAuthority) Authorize(ctx context.Context, req invoice.AuthorizationRequest, creds invoice.Credentials) (*invoice.Authorization, error) {
	m.AuthorizeCalls.Add(1)
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, req, creds)
	}
	return &invoice.Authorization{Code: "74123456789012", Result: invoice.ResultApproved}, nil
}

// LastAuthorized calls the mock function if set, otherwise returns 0.
func (m *MockAuthority) LastAuthorized(ctx context.Context, pointOfSale, docType int, creds invoice.Credentials) (int64, error) {
	if m.LastAuthorizedFunc != nil {
		return m.LastAuthorizedFunc(ctx, pointOfSale, docType, creds)
	}
	return 0, nil
}

// Ping calls the mock function if set, otherwise returns nil.
func (m *MockAuthority) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// MockAuthenticator is a mock implementation of ticket.Authenticator.
type MockAuthenticator struct {
	LoginFunc func(ctx context.Context, cms string) (*ticket.LoginResponse, error)

	Calls atomic.Int32
}

// Login counts the call and delegates to LoginFunc.
func (m *MockAuthenticator) Login(ctx context.Context, cms string) (*ticket.LoginResponse, error) {
	m.Calls.Add(1)
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, cms)
	}
	return nil, nil
}

// MockSigner is a mock implementation of ticket.Signer. Without SignFunc it
// echoes the content.
type MockSigner struct {
	SignFunc func(ctx context.Context, content []byte) ([]byte, error)
}

// Sign calls the mock function if set.
func (m *MockSigner) Sign(ctx context.Context, content []byte) ([]byte, error) {
	if m.SignFunc != nil {
		return m.SignFunc(ctx, content)
	}
	return content, nil
}
