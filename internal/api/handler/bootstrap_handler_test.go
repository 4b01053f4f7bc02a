package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

type stubBootstrap struct {
	grantFn func(ctx context.Context, email string) (domain.GrantOutcome, error)
	calls   int
}

func (s *stubBootstrap) GrantAdmin(ctx context.Context, email string) (domain.GrantOutcome, error) {
	s.calls++
	return s.grantFn(ctx, email)
}

func TestBootstrapHandler_Responses(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		outcome     domain.GrantOutcome
		wantStatus  int
		wantMessage string
		wantError   string
	}{
		{"inserted", nil, domain.GrantInserted, http.StatusOK, "Admin role assigned successfully", ""},
		{"already present", nil, domain.GrantAlreadyPresent, http.StatusOK, "User already has admin role", ""},
		{"email required", domain.ErrEmailRequired, 0, http.StatusBadRequest, "", "Email is required"},
		{"not allowed", domain.ErrEmailNotAllowed, 0, http.StatusForbidden, "", "Email not allowed"},
		{"user not found", domain.ErrUserNotFound, 0, http.StatusNotFound, "", "Failed to find user"},
		{"role missing", domain.ErrRoleNotFound, 0, http.StatusInternalServerError, "", "Failed to find admin role"},
		{"insert failed", fmt.Errorf("%w: %w", domain.ErrGrantFailed, errors.New("disk full")), 0, http.StatusInternalServerError, "", "Failed to assign admin role"},
		{"unexpected", errors.New("boom"), 0, http.StatusInternalServerError, "", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubBootstrap{grantFn: func(context.Context, string) (domain.GrantOutcome, error) {
				return tt.outcome, tt.err
			}}
			h := NewBootstrapHandler(svc, zerolog.Nop())
			e := newEcho()

			rec := httptest.NewRecorder()
			req := jsonRequest(http.MethodPost, "/functions/v1/add_admin_role", `{"email":"owner@pawhaven.org"}`)
			if err := h.Handle(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			body := decode(t, rec)
			if tt.wantMessage != "" {
				if body["message"] != tt.wantMessage || body["success"] != true {
					t.Errorf("unexpected body %v", body)
				}
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("expected error %q, got %v", tt.wantError, body["error"])
			}
		})
	}
}

func TestBootstrapHandler_GrantFailureCarriesDetails(t *testing.T) {
	svc := &stubBootstrap{grantFn: func(context.Context, string) (domain.GrantOutcome, error) {
		return 0, fmt.Errorf("%w: %w", domain.ErrGrantFailed, errors.New("disk full"))
	}}
	h := NewBootstrapHandler(svc, zerolog.Nop())
	e := newEcho()

	rec := httptest.NewRecorder()
	_ = h.Handle(e.NewContext(jsonRequest(http.MethodPost, "/functions/v1/add_admin_role", `{"email":"owner@pawhaven.org"}`), rec))

	details, _ := decode(t, rec)["details"].(string)
	if details == "" {
		t.Fatalf("expected details on a persistence failure")
	}
}

func TestBootstrapHandler_MalformedPayload(t *testing.T) {
	svc := &stubBootstrap{}
	h := NewBootstrapHandler(svc, zerolog.Nop())
	e := newEcho()

	rec := httptest.NewRecorder()
	_ = h.Handle(e.NewContext(jsonRequest(http.MethodPost, "/functions/v1/add_admin_role", `{"email":`), rec))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service must not be called for a malformed payload")
	}
}

func TestBootstrapHandler_MethodNotAllowed(t *testing.T) {
	svc := &stubBootstrap{}
	h := NewBootstrapHandler(svc, zerolog.Nop())
	e := newEcho()

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		_ = h.Handle(e.NewContext(httptest.NewRequest(method, "/functions/v1/add_admin_role", nil), rec))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, rec.Code)
		}
		if body := decode(t, rec); body["error"] != "Method not allowed" {
			t.Errorf("%s: unexpected body %v", method, body)
		}
	}
	if svc.calls != 0 {
		t.Fatalf("service must not be called for other methods")
	}
}
