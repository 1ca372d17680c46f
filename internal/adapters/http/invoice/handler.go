package invoice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appinvoice "github.com/3tcapital/facturador/internal/application/invoice"
	"github.com/3tcapital/facturador/internal/core/audit"
	"github.com/3tcapital/facturador/internal/core/invoice"
	ctxutil "github.com/3tcapital/facturador/internal/infrastructure/context"
	httperrors "github.com/3tcapital/facturador/internal/infrastructure/http"
)

// maxBatchSize bounds POST /invoices/authorize.
const maxBatchSize = 100

// Service is the invoice lifecycle as seen by the HTTP adapter.
type Service interface {
	CreateDraft(ctx context.Context, req appinvoice.DraftRequest) (*invoice.Invoice, bool, error)
	Authorize(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	AuthorizeMany(ctx context.Context, ids []uuid.UUID, workers int) appinvoice.BatchResult
	Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	Artifacts(ctx context.Context, id uuid.UUID) (invoice.Artifacts, error)
	AuthorizationLog(ctx context.Context, id uuid.UUID) ([]audit.AuthorizationLogEntry, error)
}

// Handler bridges HTTP traffic with the invoice lifecycle.
type Handler struct {
	service Service
	workers int
	log     *slog.Logger
}

// NewHandler creates a new invoice HTTP handler. workers sizes the pool
// used by batch authorization.
func NewHandler(service Service, workers int, log *slog.Logger) *Handler {
	return &Handler{service: service, workers: workers, log: log}
}

// BatchRequest is the body of POST /invoices/authorize.
type BatchRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// Create handles POST /invoices. It answers 201 for a new draft and 200
// when the source reference already belongs to an invoice.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req appinvoice.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()}, h.log)
		return
	}

	inv, created, err := h.service.CreateDraft(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httperrors.WriteJSON(w, status, inv, h.log)
}

// Authorize handles POST /invoices/{id}/authorize.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Authorize(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, inv, h.log)
}

// AuthorizeBatch handles POST /invoices/authorize.
func (h *Handler) AuthorizeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()}, h.log)
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxBatchSize {
		httperrors.WriteError(w, http.StatusBadRequest, "validation error",
			[]string{"ids must hold between 1 and 100 invoice ids"}, h.log)
		return
	}

	res := h.service.AuthorizeMany(r.Context(), req.IDs, h.workers)
	httperrors.WriteJSON(w, http.StatusOK, res, h.log)
}

// Get handles GET /invoices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, inv, h.log)
}

// Artifacts handles GET /invoices/{id}/artifacts.
func (h *Handler) Artifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}

	art, err := h.service.Artifacts(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, art, h.log)
}

// Log handles GET /invoices/{id}/log.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.AuthorizationLog(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"total": len(entries), "data": entries}, h.log)
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "validation error", []string{"invalid invoice id " + raw}, h.log)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Warn("invoice request failed",
		"path", r.URL.Path,
		"correlation_id", ctxutil.GetCorrelationID(r.Context()),
		"error", err)
	httperrors.WriteDomainError(w, err, h.log)
}
