package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const functionsAllowHeaders = "authorization, x-client-info, apikey, content-type"

// FunctionsCORS stamps permissive CORS headers and a JSON content type on
// every response, with or without an Origin header, and answers preflight
// requests with 204.
func FunctionsCORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowHeaders, functionsAllowHeaders)
			h.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
