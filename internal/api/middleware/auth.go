package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

const (
	ctxIdentity    = "identity"
	ctxSessionID   = "session_id"
	ctxAccessToken = "access_token"
)

// TokenVerifier checks an access token. service.AuthService satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*ports.TokenClaims, error)
}

// Auth validates the bearer token and injects the identity into the context.
func Auth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.Verify(c.Request().Context(), parts[1])
			if err != nil {
				if errors.Is(err, domain.ErrSessionRevoked) {
					return echo.NewHTTPError(http.StatusUnauthorized, "session revoked")
				}
				if errors.Is(err, domain.ErrInvalidToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				return err
			}

			c.Set(ctxIdentity, claims.Identity)
			c.Set(ctxSessionID, claims.SessionID)
			c.Set(ctxAccessToken, parts[1])

			return next(c)
		}
	}
}

// IdentityFrom returns the identity injected by Auth.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(domain.Identity)
	return id, ok && id.ID != ""
}

// AccessTokenFrom returns the raw bearer token injected by Auth.
func AccessTokenFrom(c echo.Context) string {
	tok, _ := c.Get(ctxAccessToken).(string)
	return tok
}
