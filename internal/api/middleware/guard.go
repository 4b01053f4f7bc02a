package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/guard"
)

// StateSource yields the authorization state of the visitor behind a request.
type StateSource interface {
	StateFor(c echo.Context) domain.AuthState
}

// Guard renders, defers or redirects according to g.
//
//	Render   → next handler
//	Loading  → 202 {"status":"loading"} with Retry-After: 1
//	Redirect → 302 to the decided location
func Guard(g guard.Guard, source StateSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := g.Decide(source.StateFor(c))
			switch d.Action {
			case guard.Render:
				return next(c)
			case guard.Redirect:
				return c.Redirect(http.StatusFound, d.Location)
			default:
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusAccepted, map[string]string{"status": "loading"})
			}
		}
	}
}
