package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
	"github.com/noah-isme/course-cert-api/pkg/response"
)

type roleService interface {
	Grant(ctx context.Context, caller string, role models.Role, account string) error
	Revoke(ctx context.Context, caller string, role models.Role, account string) error
	HasRole(ctx context.Context, role models.Role, account string) (*models.RoleMembership, error)
}

// RoleHandler exposes role registry endpoints.
type RoleHandler struct {
	roles roleService
}

// NewRoleHandler constructs RoleHandler.
func NewRoleHandler(roles roleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

func roleParam(c *gin.Context) (models.Role, bool) {
	role, ok := models.ParseRole(c.Param("role"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown role").WithDetails("role", c.Param("role")))
		return "", false
	}
	return role, true
}

// Grant godoc
// @Summary Grant a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param role path string true "ADMIN or EVALUATOR"
// @Param payload body models.AddressRequest true "Account"
// @Success 200 {object} response.Envelope
// @Router /roles/{role}/members [post]
func (h *RoleHandler) Grant(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	role, ok := roleParam(c)
	if !ok {
		return
	}
	var req models.AddressRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.roles.Grant(c.Request.Context(), caller, role, req.Address); err != nil {
		response.Error(c, err)
		return
	}
	h.respondMembership(c, role, req.Address)
}

// Revoke godoc
// @Summary Revoke a role
// @Tags Roles
// @Produce json
// @Param role path string true "ADMIN or EVALUATOR"
// @Param address path string true "Account"
// @Success 200 {object} response.Envelope
// @Router /roles/{role}/members/{address} [delete]
func (h *RoleHandler) Revoke(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	role, ok := roleParam(c)
	if !ok {
		return
	}
	account := c.Param("address")
	if err := h.roles.Revoke(c.Request.Context(), caller, role, account); err != nil {
		response.Error(c, err)
		return
	}
	h.respondMembership(c, role, account)
}

// HasRole godoc
// @Summary Check role membership
// @Tags Roles
// @Produce json
// @Param role path string true "ADMIN or EVALUATOR"
// @Param address path string true "Account"
// @Success 200 {object} response.Envelope
// @Router /roles/{role}/members/{address} [get]
func (h *RoleHandler) HasRole(c *gin.Context) {
	role, ok := roleParam(c)
	if !ok {
		return
	}
	h.respondMembership(c, role, c.Param("address"))
}

func (h *RoleHandler) respondMembership(c *gin.Context, role models.Role, account string) {
	membership, err := h.roles.HasRole(c.Request.Context(), role, account)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, membership)
}
