// Package ticket keeps a usable access ticket available, renewing it with
// the authentication service when it gets close to expiry.
package ticket

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
	"github.com/3tcapital/facturador/internal/infrastructure/cache"
)

// Config tunes renewal.
type Config struct {
	Environment   string
	Service       string
	RenewalMargin time.Duration
	Lifetime      time.Duration
	Retries       int
	RetryInterval time.Duration
}

// Manager hands out access tickets. Lookups go cache, then store; renewals
// are serialized per manager.
type Manager struct {
	cfg    Config
	store  ticket.Store
	cache  *cache.TicketCache
	signer ticket.Signer
	auth   ticket.Authenticator
	log    *slog.Logger
	mu     sync.Mutex // Serializes renewals so concurrent callers share one login
	now    func() time.Time
}

// NewManager creates a ticket manager.
func NewManager(cfg Config, store ticket.Store, tickets *cache.TicketCache, signer ticket.Signer, auth ticket.Authenticator, log *slog.Logger) *Manager {
	if cfg.Service == "" {
		cfg.Service = "wsfe"
	}
	if cfg.RenewalMargin <= 0 {
		cfg.RenewalMargin = 10 * time.Minute
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 12 * time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if tickets == nil {
		tickets = cache.NewTicketCache(0)
	}

	return &Manager{
		cfg:    cfg,
		store:  store,
		cache:  tickets,
		signer: signer,
		auth:   auth,
		log:    log,
		now:    time.Now,
	}
}

// GetValidTicket returns a ticket that outlives the renewal margin,
// renewing it when needed.
func (m *Manager) GetValidTicket(ctx context.Context, environment string) (ticket.AccessTicket, error) {
	if err := m.checkEnvironment(environment); err != nil {
		return ticket.AccessTicket{}, err
	}

	current, err := m.lookup(ctx)
	if err != nil {
		return ticket.AccessTicket{}, err
	}
	if current != nil && current.Usable(m.now(), m.cfg.RenewalMargin) {
		return *current, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the lock: another caller may have renewed.
	current, err = m.lookup(ctx)
	if err != nil {
		return ticket.AccessTicket{}, err
	}
	if current != nil && current.Usable(m.now(), m.cfg.RenewalMargin) {
		return *current, nil
	}

	return m.renew(ctx, current)
}

// Status reports the current ticket without renewing it.
func (m *Manager) Status(ctx context.Context, environment string) (ticket.Status, error) {
	if err := m.checkEnvironment(environment); err != nil {
		return ticket.Status{}, err
	}

	status := ticket.Status{Environment: m.cfg.Environment, Service: m.cfg.Service}
	current, err := m.lookup(ctx)
	if err != nil {
		return status, err
	}
	if current == nil {
		status.RenewalDue = true
		return status, nil
	}

	now := m.now()
	issued, expires := current.IssuedAt, current.ExpiresAt
	status.Present = true
	status.IssuedAt = &issued
	status.ExpiresAt = &expires
	status.Remaining = max(0, current.Remaining(now))
	status.RenewalDue = !current.Usable(now, m.cfg.RenewalMargin)
	return status, nil
}

// lookup returns the best known ticket, or nil when there is none. A cached
// ticket inside the renewal margin is compared with the store, which another
// instance may have refreshed.
func (m *Manager) lookup(ctx context.Context) (*ticket.AccessTicket, error) {
	cached, hit := m.cache.Get(m.cfg.Environment, m.cfg.Service)
	if hit && cached.Usable(m.now(), m.cfg.RenewalMargin) {
		return &cached, nil
	}

	stored, err := m.store.Get(ctx, m.cfg.Environment, m.cfg.Service)
	switch {
	case ierr.IsNotFound(err):
		if hit {
			return &cached, nil
		}
		return nil, nil
	case err != nil:
		if hit {
			m.log.Warn("Ticket store unavailable, using cached ticket", "error", err)
			return &cached, nil
		}
		return nil, ierr.WithError(err).WithMessage("load access ticket").Mark(ierr.ErrTicket)
	}

	if hit && cached.ExpiresAt.After(stored.ExpiresAt) {
		return &cached, nil
	}
	m.cache.Set(*stored)
	return stored, nil
}

// renew must be called with mu held. previous is the last known ticket and
// serves as fallback while it has not expired.
func (m *Manager) renew(ctx context.Context, previous *ticket.AccessTicket) (ticket.AccessTicket, error) {
	now := m.now()
	m.log.Info("Renewing access ticket",
		"environment", m.cfg.Environment,
		"service", m.cfg.Service,
	)

	document, err := ticket.NewLoginRequest(m.cfg.Service, now, m.cfg.Lifetime).Encode()
	if err != nil {
		return ticket.AccessTicket{}, err
	}

	signed, err := m.signer.Sign(ctx, document)
	if err != nil {
		if !ierr.IsConfiguration(err) {
			err = ierr.WithError(err).WithMessage("sign login request").Mark(ierr.ErrConfiguration)
		}
		m.log.Error("Signing login request failed", "error", err)
		return ticket.AccessTicket{}, err
	}
	cms := base64.StdEncoding.EncodeToString(signed)

	var res *ticket.LoginResponse
	operation := func() error {
		var loginErr error
		res, loginErr = m.auth.Login(ctx, cms)
		if loginErr != nil && !ierr.IsTransport(loginErr) {
			return backoff.Permanent(loginErr)
		}
		return loginErr
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.RetryInterval), uint64(max(0, m.cfg.Retries))),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		m.log.Warn("Authentication service unreachable, retrying", "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return m.fallback(ctx, previous, err)
	}

	renewed := ticket.AccessTicket{
		Environment: m.cfg.Environment,
		Service:     m.cfg.Service,
		Token:       res.Token,
		Sign:        res.Sign,
		IssuedAt:    res.GenerationTime,
		ExpiresAt:   res.ExpirationTime,
	}
	if renewed.IssuedAt.IsZero() {
		renewed.IssuedAt = now
	}
	if renewed.Expired(m.now()) {
		return ticket.AccessTicket{}, ierr.NewErrorf("authentication service issued a ticket expiring at %s", renewed.ExpiresAt).
			WithHint("check the system clock").
			Mark(ierr.ErrTicket)
	}

	if err := m.store.Save(ctx, renewed); err != nil {
		// The ticket is still valid; the cache keeps serving it in process.
		m.log.Error("Failed to persist access ticket", "error", err)
	}
	m.cache.Set(renewed)

	m.log.Info("Access ticket renewed",
		"environment", renewed.Environment,
		"service", renewed.Service,
		"expires_at", renewed.ExpiresAt,
	)
	return renewed, nil
}

// fallback decides whether a failed renewal can be absorbed by the last
// persisted ticket. The store is read again because another instance may have
// saved a fresh ticket while this one was renewing.
func (m *Manager) fallback(ctx context.Context, previous *ticket.AccessTicket, err error) (ticket.AccessTicket, error) {
	alreadyAuthenticated := errors.Is(err, ticket.ErrAlreadyAuthenticated)
	absorbable := alreadyAuthenticated || ierr.IsTransport(err)

	if absorbable {
		best := previous
		stored, getErr := m.store.Get(ctx, m.cfg.Environment, m.cfg.Service)
		switch {
		case getErr == nil:
			if best == nil || stored.ExpiresAt.After(best.ExpiresAt) {
				best = stored
			}
		case !ierr.IsNotFound(getErr):
			m.log.Warn("Ticket store unavailable during fallback", "error", getErr)
		}

		if best != nil && !best.Expired(m.now()) {
			m.log.Warn("Ticket renewal failed, using last persisted ticket",
				"error", err,
				"expires_at", best.ExpiresAt,
			)
			m.cache.Set(*best)
			return *best, nil
		}
	}

	if alreadyAuthenticated {
		return ticket.AccessTicket{}, ierr.WithError(err).
			WithHint("a ticket was issued outside this store; wait for it to expire").
			Mark(ierr.ErrTicket)
	}
	m.log.Error("Ticket renewal failed", "error", err)
	return ticket.AccessTicket{}, err
}

func (m *Manager) checkEnvironment(environment string) error {
	if environment != "" && environment != m.cfg.Environment {
		return ierr.NewErrorf("environment %q is not configured", environment).
			WithHintf("this instance serves %q", m.cfg.Environment).
			Mark(ierr.ErrValidation)
	}
	return nil
}
