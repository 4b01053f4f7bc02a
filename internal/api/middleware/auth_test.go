package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

type stubVerifier struct {
	claims map[string]*ports.TokenClaims
	err    error
}

func (v *stubVerifier) Verify(_ context.Context, token string) (*ports.TokenClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	c, ok := v.claims[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return c, nil
}

func newVerifier() *stubVerifier {
	return &stubVerifier{claims: map[string]*ports.TokenClaims{
		"good": {Identity: domain.Identity{ID: "u1", Email: "alice@example.com"}, SessionID: "sid-1"},
	}}
}

func runAuth(t *testing.T, v TokenVerifier, header string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Auth(v)(next)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	called := false
	rec := runAuth(t, newVerifier(), "Bearer good", func(c echo.Context) error {
		called = true
		id, ok := IdentityFrom(c)
		if !ok || id.ID != "u1" || id.Email != "alice@example.com" {
			t.Fatalf("identity not set: %+v", id)
		}
		if AccessTokenFrom(c) != "good" {
			t.Fatalf("access token not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
		v      *stubVerifier
		want   int
	}{
		{"missing header", "", newVerifier(), http.StatusUnauthorized},
		{"wrong scheme", "Token good", newVerifier(), http.StatusUnauthorized},
		{"empty token", "Bearer ", newVerifier(), http.StatusUnauthorized},
		{"unknown token", "Bearer bad", newVerifier(), http.StatusUnauthorized},
		{"revoked session", "Bearer good", &stubVerifier{err: domain.ErrSessionRevoked}, http.StatusUnauthorized},
		{"revocation list down", "Bearer good", &stubVerifier{err: errors.New("redis down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := runAuth(t, tc.v, tc.header, func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestIdentityFrom_Missing(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if _, ok := IdentityFrom(c); ok {
		t.Fatalf("expected no identity")
	}
}
