package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

// RPCHandler exposes role-table functions under /rest/v1/rpc.
type RPCHandler struct {
	roles ports.RoleChecker
	log   zerolog.Logger
}

func NewRPCHandler(roles ports.RoleChecker, log zerolog.Logger) *RPCHandler {
	return &RPCHandler{roles: roles, log: log.With().Str("component", "rpc").Logger()}
}

type hasRoleRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	RoleName string `json:"role_name" validate:"required,oneof=admin user"`
}

// HasRole answers has_role(user_id, role_name) as a JSON boolean. Callers
// may ask about themselves; asking about anyone else requires the admin role.
//
// @Summary      Check a role assignment
// @Tags         rpc
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      hasRoleRequest  true  "Role query"
// @Success      200   {boolean} bool
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /rest/v1/rpc/has_role [post]
func (h *RPCHandler) HasRole(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}

	var req hasRoleRequest
	if msg := bindAndValidate(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	ctx := c.Request().Context()
	if req.UserID != caller.ID {
		isAdmin, err := h.roles.HasRole(ctx, caller.ID, domain.RoleAdmin)
		if err != nil || !isAdmin {
			if err != nil {
				h.log.Warn().Err(err).Str("user_id", caller.ID).Msg("admin check failed; denying")
			}
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
	}

	held, err := h.roles.HasRole(ctx, req.UserID, req.RoleName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, held)
}
