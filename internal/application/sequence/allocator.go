// Package sequence allocates document numbers and reconciles local counters
// with the authority.
package sequence

import (
	"context"
	"log/slog"

	"github.com/3tcapital/facturador/internal/core/sequence"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// LastNumberSource reports the authority's last authorized number.
type LastNumberSource interface {
	LastAuthorized(ctx context.Context, pointOfSale, docType int) (int64, error)
}

// Allocator hands out consecutive numbers per scope. A number is consumed
// when allocated and never handed out again, even if its document is
// never authorized.
type Allocator struct {
	store  sequence.Store
	source LastNumberSource
	log    *slog.Logger
}

// NewAllocator creates an allocator. source seeds external scopes the
// first time they are used.
func NewAllocator(store sequence.Store, source LastNumberSource, log *slog.Logger) *Allocator {
	return &Allocator{store: store, source: source, log: log}
}

// Next returns the next number for scope.
func (a *Allocator) Next(ctx context.Context, scope sequence.Scope) (int64, error) {
	seed, err := a.seedFor(scope)
	if err != nil {
		return 0, err
	}

	n, err := a.store.Next(ctx, scope, seed)
	if err != nil {
		a.log.Error("Number allocation failed", "scope_key", scope, "error", err)
		return 0, err
	}

	a.log.Info("Number allocated", "scope_key", scope, "number", n)
	return n, nil
}

// Synchronize compares the local counter of an external scope with the
// authority and overwrites it when they differ. It is an operator action.
func (a *Allocator) Synchronize(ctx context.Context, scope sequence.Scope) (sequence.SyncReport, error) {
	report := sequence.SyncReport{Scope: scope}

	if !scope.IsExternal() {
		return report, ierr.NewErrorf("scope %s is numbered locally", scope).
			WithHint("only pos:<point of sale>:type:<doc type> scopes have an authority counter").
			Mark(ierr.ErrValidation)
	}
	pos, docType, err := scope.ExternalParts()
	if err != nil {
		return report, err
	}

	remote, err := a.source.LastAuthorized(ctx, pos, docType)
	if err != nil {
		return report, err
	}

	previous, err := a.store.Overwrite(ctx, scope, remote)
	if err != nil {
		return report, err
	}

	report.Local = previous
	report.Remote = remote
	report.Delta = remote - previous
	report.Updated = previous != remote

	if report.Updated {
		a.log.Warn("Counter differed from authority, overwritten",
			"scope_key", scope,
			"local", previous,
			"remote", remote,
		)
	} else {
		a.log.Info("Counter in sync with authority", "scope_key", scope, "number", remote)
	}
	return report, nil
}

// Status returns the current counter for scope.
func (a *Allocator) Status(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error) {
	return a.store.Get(ctx, scope)
}

func (a *Allocator) seedFor(scope sequence.Scope) (sequence.SeedFunc, error) {
	if !scope.IsExternal() {
		return func(context.Context) (int64, error) { return 0, nil }, nil
	}

	pos, docType, err := scope.ExternalParts()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (int64, error) {
		last, err := a.source.LastAuthorized(ctx, pos, docType)
		if err != nil {
			return 0, err
		}
		a.log.Info("Seeding counter from authority", "scope_key", scope, "last_authorized", last)
		return last, nil
	}, nil
}
