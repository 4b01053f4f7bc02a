package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

const defaultHTTPTimeout = 10 * time.Second

// TokenSource supplies the bearer token for calls made on behalf of a
// signed-in identity.
type TokenSource interface {
	AccessToken() string
}

// HTTPBackend talks to a remote adoption-api over its /auth/v1, /rest/v1 and
// /functions/v1 routes.
type HTTPBackend struct {
	baseURL string
	hc      *http.Client
}

var _ ports.SessionBackend = (*HTTPBackend)(nil)

// NewHTTPBackend returns a backend rooted at baseURL. A nil hc gets a client
// with a 10s timeout.
func NewHTTPBackend(baseURL string, hc *http.Client) *HTTPBackend {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (b *HTTPBackend) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var sess domain.Session
	body := map[string]string{"email": email, "password": password}
	if err := b.do(ctx, http.MethodPost, "/auth/v1/token", "", body, &sess); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, apiErr.Message)
		}
		return nil, err
	}
	return &sess, nil
}

func (b *HTTPBackend) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var sess domain.Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := b.do(ctx, http.MethodPost, "/auth/v1/token/refresh", "", body, &sess); err != nil {
		return nil, mapTokenError(err)
	}
	return &sess, nil
}

func (b *HTTPBackend) SignOut(ctx context.Context, accessToken string) error {
	return mapTokenError(b.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil))
}

func (b *HTTPBackend) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	var id domain.Identity
	if err := b.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &id); err != nil {
		return nil, mapTokenError(err)
	}
	return &id, nil
}

// BootstrapAdmin calls the bootstrap-admin function and returns its message.
func (b *HTTPBackend) BootstrapAdmin(ctx context.Context, email string) (string, error) {
	var out struct {
		Message string `json:"message"`
		Success bool   `json:"success"`
	}
	if err := b.do(ctx, http.MethodPost, "/functions/v1/add_admin_role", "", map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Roles returns a RoleChecker that authenticates with tokens.
func (b *HTTPBackend) Roles(tokens TokenSource) ports.RoleChecker {
	return &remoteRoles{backend: b, tokens: tokens}
}

type remoteRoles struct {
	backend *HTTPBackend
	tokens  TokenSource
}

func (r *remoteRoles) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	var ok bool
	body := map[string]string{"user_id": userID, "role_name": roleName}
	if err := r.backend.do(ctx, http.MethodPost, "/rest/v1/rpc/has_role", r.tokens.AccessToken(), body, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope)
		if envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Error, Details: envelope.Details}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func mapTokenError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", domain.ErrInvalidToken, apiErr.Message)
	}
	return err
}
