package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pawhaven/adoption-portal/internal/api/middleware"
	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// callerIdentity returns the identity the Auth middleware proved. Its absence
// means the route was wired without Auth, so the request is rejected.
func callerIdentity(c echo.Context) (domain.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return domain.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return id, nil
}

// bindAndValidate decodes the JSON body into req and runs the echo validator.
// It returns the client-facing message, or "" when req is usable.
func bindAndValidate(c echo.Context, req any) string {
	if err := c.Bind(req); err != nil {
		return "invalid payload"
	}
	if err := c.Validate(req); err != nil {
		return err.Error()
	}
	return ""
}

// StatusFor maps a domain error to its HTTP status. Anything unknown is a 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrAuthFailure),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrSessionRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrEmailNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmailRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes known domain errors as {"error": ...}. Unknown errors
// are returned for the central error handler to log.
func respondError(c echo.Context, err error) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		return err
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
