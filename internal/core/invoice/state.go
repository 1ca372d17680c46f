package invoice

import (
	"time"

	"github.com/google/uuid"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

// State is the lifecycle position of an invoice.
type State string

const (
	StateDraft              State = "DRAFT"
	StateAuthorizedExternal State = "AUTHORIZED_EXTERNAL"
	StateAuthorizedLocal    State = "AUTHORIZED_LOCAL"
	StateRejected           State = "REJECTED"
	StateVoid               State = "VOID"
)

// Terminal reports whether no further authorization is possible.
func (s State) Terminal() bool {
	return s == StateAuthorizedExternal || s == StateAuthorizedLocal || s == StateVoid
}

// CanAuthorize reports whether Authorize is legal from s.
func (s State) CanAuthorize() bool {
	return s == StateDraft || s == StateRejected
}

func invalidTransition(from State, action string) error {
	return ierr.NewErrorf("cannot %s an invoice in state %s", action, from).
		WithReportableDetails(map[string]any{"state": string(from), "action": action}).
		Mark(ierr.ErrInvalidState)
}

// Reprocess reverts a rejected invoice to DRAFT, detaching its number and
// authorization result.
func (inv *Invoice) Reprocess(now time.Time) error {
	if inv.State != StateRejected {
		return invalidTransition(inv.State, "reprocess")
	}
	inv.State = StateDraft
	inv.Number = nil
	inv.Authorization = nil
	inv.UpdatedAt = now
	return nil
}

// AssignNumber attaches an allocated number to a draft. A draft keeps the
// number it already has.
func (inv *Invoice) AssignNumber(n int64, now time.Time) error {
	if inv.State != StateDraft {
		return invalidTransition(inv.State, "number")
	}
	if inv.Number != nil {
		return ierr.NewErrorf("invoice already numbered %d", *inv.Number).Mark(ierr.ErrInvalidState)
	}
	inv.Number = &n
	inv.UpdatedAt = now
	return nil
}

// ApplyResult stores the authority's decision and moves the draft to
// AUTHORIZED_EXTERNAL or REJECTED.
func (inv *Invoice) ApplyResult(res Authorization, now time.Time) error {
	if inv.State != StateDraft {
		return invalidTransition(inv.State, "authorize")
	}
	if inv.Number == nil {
		return ierr.NewError("invoice has no number").Mark(ierr.ErrInvalidState)
	}
	r := res
	inv.Authorization = &r
	if res.Approved() {
		inv.State = StateAuthorizedExternal
	} else {
		inv.State = StateRejected
	}
	inv.UpdatedAt = now
	return nil
}

// AuthorizeLocally finalizes an internally numbered draft.
func (inv *Invoice) AuthorizeLocally(n int64, now time.Time) error {
	if inv.State != StateDraft {
		return invalidTransition(inv.State, "authorize")
	}
	if inv.RequiresExternalAuthorization() {
		return ierr.NewError("invoice requires external authorization").Mark(ierr.ErrInvalidState)
	}
	inv.Number = &n
	inv.State = StateAuthorizedLocal
	inv.UpdatedAt = now
	return nil
}

// Guard is the stored state and number an update expects to replace. An
// update whose guard no longer matches the stored row is rejected.
type Guard struct {
	State  State
	Number *int64
}

// Guard captures the current state and number of inv.
func (inv *Invoice) Guard() Guard {
	g := Guard{State: inv.State}
	if inv.Number != nil {
		n := *inv.Number
		g.Number = &n
	}
	return g
}

// Matches reports whether inv still holds the guarded state and number.
func (g Guard) Matches(inv *Invoice) bool {
	if inv.State != g.State {
		return false
	}
	if g.Number == nil || inv.Number == nil {
		return g.Number == nil && inv.Number == nil
	}
	return *g.Number == *inv.Number
}

// ConcurrentUpdate reports an update whose guard no longer matches.
func ConcurrentUpdate(inv *Invoice, stored State) error {
	return ierr.NewErrorf("invoice %s was changed concurrently; it is now %s", inv.ID, stored).
		WithHint("reload the invoice before retrying").
		WithReportableDetails(map[string]any{"state": string(stored)}).
		Mark(ierr.ErrInvalidState)
}

// AuthorizationInProgress reports a Lock held by another caller.
func AuthorizationInProgress(id uuid.UUID) error {
	return ierr.NewErrorf("authorization of invoice %s is already in progress", id).
		WithHint("retry once the running authorization finishes").
		Mark(ierr.ErrInvalidState)
}
