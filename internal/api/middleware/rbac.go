package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

// RequireRole lets the request through only when the authenticated identity
// holds roleName. A failed lookup denies access. Must run after Auth.
func RequireRole(roles ports.RoleChecker, roleName string, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
			}

			held, err := roles.HasRole(c.Request().Context(), id.ID, roleName)
			if err != nil {
				log.Warn().Err(err).Str("user_id", id.ID).Str("role", roleName).Msg("role check failed; denying")
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			if !held {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
