package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/http/api/admin/permissions"
)

// PermissionHandler lists the admin capability table.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns every permission definition and the caller's grants.
func (h *PermissionHandler) List(c *gin.Context) {
	role := c.GetString(AdminRoleKey)
	c.JSON(http.StatusOK, gin.H{
		"permissions": permissions.Definitions(),
		"role":        role,
		"granted":     permissions.ForRole(role),
	})
}
