package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphealth "github.com/3tcapital/facturador/internal/application/health"
	corehealth "github.com/3tcapital/facturador/internal/core/health"
	"github.com/3tcapital/facturador/internal/testutil"
)

func TestNewHandler(t *testing.T) {
	service := &apphealth.Service{}
	handler := NewHandler(service, testutil.NewNullLogger())

	if handler == nil {
		t.Fatal("expected handler to be created, got nil")
	}

	if handler.service != service {
		t.Error("expected handler to have the provided service")
	}
}

func TestHandler_Status(t *testing.T) {
	meta := apphealth.Metadata{
		Service:     "test-service",
		Version:     "1.0.0",
		Environment: "test",
	}

	service := apphealth.NewService(meta, testutil.NewNullLogger(), apphealth.Check{
		Name:  "authority",
		Probe: func(context.Context) error { return nil },
	})
	handler := NewHandler(service, testutil.NewNullLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status code %d, got %d", http.StatusOK, w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var status corehealth.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if status.Service != meta.Service {
		t.Errorf("expected service %q, got %q", meta.Service, status.Service)
	}

	if status.Status != corehealth.StatusUp {
		t.Errorf("expected status 'UP', got %q", status.Status)
	}

	if len(status.Dependencies) != 1 || status.Dependencies[0].Name != "authority" {
		t.Errorf("expected the authority check in the response, got %+v", status.Dependencies)
	}
}

func TestHandler_Status_Degraded(t *testing.T) {
	service := apphealth.NewService(apphealth.Metadata{Service: "facturador"}, testutil.NewNullLogger(), apphealth.Check{
		Name:  "authority",
		Probe: func(context.Context) error { return errors.New("DbServer=ERR") },
	})
	handler := NewHandler(service, testutil.NewNullLogger())

	w := httptest.NewRecorder()
	handler.Status(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}
