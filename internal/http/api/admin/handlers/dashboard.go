package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/ledger"
	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/gorm"
)

const dashboardDays = 7

// DashboardHandler aggregates headline numbers for the admin console.
type DashboardHandler struct {
	db     *gorm.DB
	ledger *ledger.Store
	now    func() time.Time
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(db *gorm.DB, now func() time.Time) *DashboardHandler {
	if now == nil {
		now = time.Now
	}
	return &DashboardHandler{db: db, ledger: ledger.NewStore(db), now: now}
}

type planCount struct {
	Plan   string
	Status string
	Count  int64
}

// Stats returns user counts per plan and status plus the recent generation trend.
func (h *DashboardHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now().UTC()

	var rows []planCount
	if errScan := h.db.WithContext(ctx).Model(&models.User{}).
		Select("subscription_plan AS plan, subscription_status AS status, COUNT(*) AS count").
		Group("subscription_plan, subscription_status").
		Scan(&rows).Error; errScan != nil {
		apperr.Respond(c, apperr.Internal(errScan))
		return
	}
	byPlan := make(map[string]int64, len(models.Plans))
	for _, plan := range models.Plans {
		byPlan[plan] = 0
	}
	byStatus := map[string]int64{
		models.SubscriptionTrial:    0,
		models.SubscriptionActive:   0,
		models.SubscriptionInactive: 0,
	}
	var totalUsers int64
	for _, row := range rows {
		byPlan[row.Plan] += row.Count
		byStatus[row.Status] += row.Count
		totalUsers += row.Count
	}

	var suspended, expiredTrials, newUsers int64
	base := h.db.WithContext(ctx).Model(&models.User{})
	if errCount := base.Session(&gorm.Session{}).Where("is_suspended = ?", true).Count(&suspended).Error; errCount != nil {
		apperr.Respond(c, apperr.Internal(errCount))
		return
	}
	if errCount := base.Session(&gorm.Session{}).
		Where("subscription_status = ? AND (subscription_trial_end_date IS NULL OR subscription_trial_end_date <= ?)", models.SubscriptionTrial, now).
		Count(&expiredTrials).Error; errCount != nil {
		apperr.Respond(c, apperr.Internal(errCount))
		return
	}
	since := now.AddDate(0, 0, -dashboardDays)
	if errCount := base.Session(&gorm.Session{}).Where("created_at >= ?", since).Count(&newUsers).Error; errCount != nil {
		apperr.Respond(c, apperr.Internal(errCount))
		return
	}

	allTime, errAll := h.ledger.Stats(ctx, 0, time.Time{})
	if errAll != nil {
		apperr.Respond(c, apperr.Internal(errAll))
		return
	}
	recent, errRecent := h.ledger.Stats(ctx, 0, since)
	if errRecent != nil {
		apperr.Respond(c, apperr.Internal(errRecent))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": gin.H{
			"total":         totalUsers,
			"byPlan":        byPlan,
			"byStatus":      byStatus,
			"suspended":     suspended,
			"expiredTrials": expiredTrials,
			"newLast7Days":  newUsers,
		},
		"generations": gin.H{
			"success": allTime.Success,
			"errors":  allTime.Errors,
			"tools":   allTime.Tools,
		},
		"recent": recent,
	})
}
