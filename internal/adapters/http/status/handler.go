// Package status exposes the operator views of access tickets and number
// sequences.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/3tcapital/facturador/internal/core/sequence"
	"github.com/3tcapital/facturador/internal/core/ticket"
	ctxutil "github.com/3tcapital/facturador/internal/infrastructure/context"
	httperrors "github.com/3tcapital/facturador/internal/infrastructure/http"
)

// Tickets reports the current access ticket of an environment.
type Tickets interface {
	Status(ctx context.Context, environment string) (ticket.Status, error)
}

// Sequences reports and reconciles number counters.
type Sequences interface {
	Status(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error)
	Synchronize(ctx context.Context, scope sequence.Scope) (sequence.SyncReport, error)
}

// Handler serves ticket and sequence status.
type Handler struct {
	tickets   Tickets
	sequences Sequences
	log       *slog.Logger
}

func NewHandler(tickets Tickets, sequences Sequences, log *slog.Logger) *Handler {
	return &Handler{tickets: tickets, sequences: sequences, log: log}
}

// Ticket handles GET /tickets/{environment}.
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	st, err := h.tickets.Status(r.Context(), chi.URLParam(r, "environment"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, st, h.log)
}

// Sequence handles GET /sequences/{scope}.
func (h *Handler) Sequence(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	counter, err := h.sequences.Status(r.Context(), scope)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, counter, h.log)
}

// Sync handles POST /sequences/{scope}/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	report, err := h.sequences.Synchronize(r.Context(), scope)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.log.Info("Sequence synchronized by operator",
		"scope_key", report.Scope,
		"delta", report.Delta,
		"updated", report.Updated,
		"correlation_id", ctxutil.GetCorrelationID(r.Context()))
	httperrors.WriteJSON(w, http.StatusOK, report, h.log)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (sequence.Scope, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "scope"))
	if err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "validation error", []string{"malformed scope"}, h.log)
		return "", false
	}
	scope, err := sequence.ParseScope(raw)
	if err != nil {
		httperrors.WriteDomainError(w, err, h.log)
		return "", false
	}
	return scope, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Warn("status request failed", "path", r.URL.Path, "error", err)
	httperrors.WriteDomainError(w, err, h.log)
}
