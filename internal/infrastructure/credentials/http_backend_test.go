package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Session{
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(time.Hour).UTC(),
			Identity:     domain.Identity{ID: "u1", Email: in["email"]},
		})
	})
	mux.HandleFunc("/auth/v1/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"session revoked"}`))
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Identity{ID: "u1", Email: "a@example.com"})
	})
	mux.HandleFunc("/rest/v1/rpc/has_role", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(in["user_id"] == "u1" && in["role_name"] == "admin")
	})
	mux.HandleFunc("/functions/v1/add_admin_role", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["email"] != "owner@pawhaven.org" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Email not allowed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"Admin role assigned successfully","success":true}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackend_SignIn(t *testing.T) {
	b := NewHTTPBackend(newTestServer(t).URL+"/", nil)

	sess, err := b.SignIn(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "at", sess.AccessToken)
	require.Equal(t, "u1", sess.Identity.ID)

	_, err = b.SignIn(context.Background(), "a@example.com", "nope")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestHTTPBackend_Refresh_Rejected(t *testing.T) {
	b := NewHTTPBackend(newTestServer(t).URL, nil)

	_, err := b.Refresh(context.Background(), "rt")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestHTTPBackend_SignOutAndGetUser(t *testing.T) {
	b := NewHTTPBackend(newTestServer(t).URL, nil)

	require.NoError(t, b.SignOut(context.Background(), "at"))
	require.ErrorIs(t, b.SignOut(context.Background(), "other"), domain.ErrInvalidToken)

	id, err := b.GetUser(context.Background(), "at")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", id.Email)
}

func TestHTTPBackend_Roles(t *testing.T) {
	b := NewHTTPBackend(newTestServer(t).URL, nil)

	ok, err := b.Roles(staticToken("at")).HasRole(context.Background(), "u1", "admin")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Roles(staticToken("at")).HasRole(context.Background(), "u2", "admin")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = b.Roles(staticToken("")).HasRole(context.Background(), "u1", "admin")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestHTTPBackend_BootstrapAdmin(t *testing.T) {
	b := NewHTTPBackend(newTestServer(t).URL, nil)

	msg, err := b.BootstrapAdmin(context.Background(), "owner@pawhaven.org")
	require.NoError(t, err)
	require.Equal(t, "Admin role assigned successfully", msg)

	_, err = b.BootstrapAdmin(context.Background(), "x@example.com")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "Email not allowed", apiErr.Message)
}
