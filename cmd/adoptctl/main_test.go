package main

import (
	"bytes"
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

// fakeAPI serves the remote routes adoptctl talks to. owner@pawhaven.org is
// an administrator, everyone else a plain user.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Session{
			AccessToken:  "at-" + in["email"],
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(time.Hour),
			Identity:     domain.Identity{ID: in["email"], Email: in["email"]},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/rest/v1/rpc/has_role", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(in["user_id"] == "owner@pawhaven.org" && in["role_name"] == "admin")
	})
	mux.HandleFunc("/functions/v1/add_admin_role", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["email"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Email is required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"Admin role assigned successfully","success":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-server", fakeAPI(t).URL}, args...), &out)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	return body, nil
}

func TestLogin(t *testing.T) {
	body, err := runCLI(t, "login", "-email", "owner@pawhaven.org", "-password", "secret1")
	require.NoError(t, err)
	require.Equal(t, "authenticated_resolved", body["phase"])
	require.Equal(t, true, body["is_admin"])
	require.Equal(t, "admin", body["role"])
}

func TestLogin_BadPassword(t *testing.T) {
	_, err := runCLI(t, "login", "-email", "alice@example.com", "-password", "nope")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		email, route, decision, location string
	}{
		{"owner@pawhaven.org", "admin", "render", ""},
		{"alice@example.com", "admin", "redirect", "/user/profile"},
		{"alice@example.com", "user", "render", ""},
	}
	for _, tt := range tests {
		body, err := runCLI(t, "check", "-email", tt.email, "-password", "secret1", "-route", tt.route)
		require.NoError(t, err)
		require.Equal(t, tt.decision, body["decision"], "%s on %s", tt.email, tt.route)
		require.Equal(t, tt.location, body["location"])
	}
}

func TestBootstrap(t *testing.T) {
	body, err := runCLI(t, "bootstrap", "-email", "owner@pawhaven.org")
	require.NoError(t, err)
	require.Equal(t, "Admin role assigned successfully", body["message"])

	_, err = runCLI(t, "bootstrap")
	require.Error(t, err)
}

func TestUsage(t *testing.T) {
	_, err := runCLI(t)
	require.True(t, errors.Is(err, errUsage))

	_, err = runCLI(t, "promote")
	require.True(t, errors.Is(err, errUsage))
}
