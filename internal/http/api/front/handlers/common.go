package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/models"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

var errNoUser = errors.New("missing user in context")

// currentUserID returns the id set by the auth middleware.
func currentUserID(c *gin.Context) (uint64, error) {
	raw, ok := c.Get(UserIDKey)
	if !ok {
		return 0, apperr.Auth(apperr.CodeUnauthorized, "Not authorized").Wrap(errNoUser)
	}
	id, ok := raw.(uint64)
	if !ok || id == 0 {
		return 0, apperr.Auth(apperr.CodeUnauthorized, "Not authorized").Wrap(errNoUser)
	}
	return id, nil
}

func parseID(c *gin.Context, name string) (uint64, error) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

// parseTimeParam accepts RFC 3339 timestamps or YYYY-MM-DD dates.
func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
		return &t, nil
	}
	t, errParse := time.Parse("2006-01-02", raw)
	if errParse != nil {
		return nil, apperr.Validation("invalid date: " + raw)
	}
	return &t, nil
}

func subscriptionPayload(sub models.Subscription, now time.Time) gin.H {
	out := gin.H{
		"plan":           sub.Plan,
		"status":         sub.Status,
		"trialStartDate": sub.TrialStartDate,
		"trialEndDate":   sub.TrialEndDate,
		"trialExpired":   sub.IsTrialExpired(now),
	}
	if sub.Status == models.SubscriptionTrial && sub.TrialEndDate != nil {
		left := int(sub.TrialEndDate.Sub(now).Hours() / 24)
		if left < 0 {
			left = 0
		}
		out["trialDaysLeft"] = left
	}
	return out
}

func userPayload(u *models.User, now time.Time) gin.H {
	return gin.H{
		"id":           u.ID,
		"name":         u.Name,
		"email":        u.Email,
		"role":         u.Role,
		"subscription": subscriptionPayload(u.Subscription, now),
		"usage": gin.H{
			"totalGenerations":   u.TotalGenerations,
			"monthlyGenerations": u.MonthlyGenerations,
		},
		"isSuspended": u.IsSuspended,
		"createdAt":   u.CreatedAt,
	}
}

func recordPayload(row models.UsageRecord, withPayload bool) gin.H {
	out := gin.H{
		"id":             row.ID,
		"toolId":         row.ToolID,
		"toolName":       row.ToolName,
		"processingTime": row.ProcessingTimeMs,
		"status":         row.Status,
		"createdAt":      row.CreatedAt,
	}
	if row.ErrorMessage != "" {
		out["errorMessage"] = row.ErrorMessage
	}
	if withPayload {
		out["input"] = jsonOrNil(row.Input)
		out["output"] = jsonOrNil(row.Output)
	}
	return out
}

func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return rawJSON(raw)
}

// rawJSON embeds stored JSON verbatim in a response.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
