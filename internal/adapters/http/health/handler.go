package health

import (
	"log/slog"
	"net/http"

	apphealth "github.com/3tcapital/facturador/internal/application/health"
	corehealth "github.com/3tcapital/facturador/internal/core/health"
	httperrors "github.com/3tcapital/facturador/internal/infrastructure/http"
)

// Handler bridges HTTP traffic with the health application service.
type Handler struct {
	service *apphealth.Service
	log     *slog.Logger
}

func NewHandler(service *apphealth.Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Status handles GET /health. A degraded service answers 503 so load
// balancers stop routing authorization traffic to it.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	response := h.service.Status(r.Context())

	status := http.StatusOK
	if response.Status != corehealth.StatusUp {
		status = http.StatusServiceUnavailable
	}
	httperrors.WriteJSON(w, status, response, h.log)
}
