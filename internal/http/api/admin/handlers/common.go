package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/models"
)

// Context keys set by the admin auth middleware.
const (
	AdminIDKey   = "adminID"
	AdminRoleKey = "adminRole"
)

func parseID(c *gin.Context) (uint64, error) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func currentAdminID(c *gin.Context) (uint64, error) {
	id, ok := c.Get(AdminIDKey)
	if !ok {
		return 0, apperr.Auth(apperr.CodeUnauthorized, "Not authorized")
	}
	adminID, ok := id.(uint64)
	if !ok || adminID == 0 {
		return 0, apperr.Auth(apperr.CodeUnauthorized, "Not authorized")
	}
	return adminID, nil
}

func formatUser(u *models.User, now time.Time) gin.H {
	return gin.H{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
		"subscription": gin.H{
			"plan":           u.Subscription.Plan,
			"status":         u.Subscription.Status,
			"trialStartDate": u.Subscription.TrialStartDate,
			"trialEndDate":   u.Subscription.TrialEndDate,
			"trialExpired":   u.Subscription.IsTrialExpired(now),
		},
		"usage": gin.H{
			"totalGenerations":   u.TotalGenerations,
			"monthlyGenerations": u.MonthlyGenerations,
			"monthlyResetAt":     u.MonthlyResetAt,
		},
		"isSuspended":     u.IsSuspended,
		"suspendedReason": u.SuspendedReason,
		"totpEnabled":     u.TOTPEnabled,
		"lastLoginAt":     u.LastLoginAt,
		"createdAt":       u.CreatedAt,
		"updatedAt":       u.UpdatedAt,
	}
}
