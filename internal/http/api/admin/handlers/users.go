package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	dbutil "github.com/marketforge/marketforge/internal/db"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/security"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxUserPageSize = 100

// UserHandler manages user accounts from the admin console.
type UserHandler struct {
	db       *gorm.DB
	users    *store.GormUserStore
	counters *usage.Counters
	now      func() time.Time
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, now func() time.Time) *UserHandler {
	if now == nil {
		now = time.Now
	}
	return &UserHandler{
		db:       db,
		users:    store.NewGormUserStore(db),
		counters: usage.NewCounters(db),
		now:      now,
	}
}

func isValidRole(role string) bool {
	return role == models.RoleUser || models.IsStaffRole(role)
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// Create creates an account on a fresh free trial.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("name, a valid email and password are required"))
		return
	}
	if len(body.Password) < security.MinPasswordLength {
		apperr.Respond(c, apperr.Validation("Password must be at least 6 characters"))
		return
	}
	role := strings.TrimSpace(body.Role)
	if role != "" && !isValidRole(role) {
		apperr.Respond(c, apperr.Validation("role must be user, support or admin"))
		return
	}

	now := h.now()
	user, errCreate := h.users.Create(c.Request.Context(), store.NewUser{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     role,
	}, now)
	if errCreate != nil {
		if errors.Is(errCreate, store.ErrEmailTaken) {
			apperr.Respond(c, apperr.Conflict("User already exists"))
			return
		}
		apperr.Respond(c, apperr.Internal(errCreate))
		return
	}
	c.JSON(http.StatusCreated, formatUser(user, now))
}

type listUsersQuery struct {
	Page      int    `form:"page,default=1"`
	Limit     int    `form:"limit,default=20"`
	Search    string `form:"search"`
	Plan      string `form:"plan"`
	Status    string `form:"status"`
	Role      string `form:"role"`
	Suspended string `form:"suspended"`
}

// List returns users with optional filters, newest first.
func (h *UserHandler) List(c *gin.Context) {
	var q listUsersQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid query"))
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > maxUserPageSize {
		q.Limit = maxUserPageSize
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if search := strings.TrimSpace(q.Search); search != "" {
		searchPattern := "%" + search + "%"
		ciPattern := dbutil.NormalizeLikePattern(h.db, searchPattern)
		query = query.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "name")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "email")+" OR CAST(id AS TEXT) LIKE ?",
			ciPattern,
			ciPattern,
			searchPattern,
		)
	}
	if plan := strings.TrimSpace(q.Plan); plan != "" {
		query = query.Where("subscription_plan = ?", plan)
	}
	if status := strings.TrimSpace(q.Status); status != "" {
		query = query.Where("subscription_status = ?", status)
	}
	if role := strings.TrimSpace(q.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	switch strings.TrimSpace(q.Suspended) {
	case "true", "1":
		query = query.Where("is_suspended = ?", true)
	case "false", "0":
		query = query.Where("is_suspended = ?", false)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		apperr.Respond(c, apperr.Internal(errCount))
		return
	}
	var rows []models.User
	if errFind := query.Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}

	now := h.now()
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatUser(&rows[i], now))
	}
	pages := (total + int64(q.Limit) - 1) / int64(q.Limit)
	c.JSON(http.StatusOK, gin.H{
		"users": out,
		"pagination": gin.H{
			"page":  q.Page,
			"limit": q.Limit,
			"total": total,
			"pages": pages,
		},
	})
}

// Get returns a user with per-tool counters.
func (h *UserHandler) Get(c *gin.Context) {
	user, errLoad := h.load(c)
	if errLoad != nil {
		apperr.Respond(c, errLoad)
		return
	}
	snap, errSnap := h.counters.Snapshot(c.Request.Context(), user.ID)
	if errSnap != nil {
		apperr.Respond(c, apperr.Internal(errSnap))
		return
	}
	out := formatUser(user, h.now())
	out["toolsUsed"] = snap.ToolsUsed
	c.JSON(http.StatusOK, out)
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

// Update modifies profile fields, role or password.
func (h *UserHandler) Update(c *gin.Context) {
	user, errLoad := h.load(c)
	if errLoad != nil {
		apperr.Respond(c, errLoad)
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid json"))
		return
	}

	ctx := c.Request.Context()
	updates := map[string]any{"updated_at": h.now().UTC()}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			apperr.Respond(c, apperr.Validation("name cannot be empty"))
			return
		}
		updates["name"] = name
	}
	if body.Email != nil {
		email := store.NormalizeEmail(*body.Email)
		if email == "" || !strings.Contains(email, "@") {
			apperr.Respond(c, apperr.Validation("invalid email"))
			return
		}
		if email != user.Email {
			var count int64
			if errCount := h.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", email, user.ID).
				Count(&count).Error; errCount != nil {
				apperr.Respond(c, apperr.Internal(errCount))
				return
			}
			if count > 0 {
				apperr.Respond(c, apperr.Conflict("email already registered"))
				return
			}
		}
		updates["email"] = email
	}
	if body.Role != nil {
		role := strings.TrimSpace(*body.Role)
		if !isValidRole(role) {
			apperr.Respond(c, apperr.Validation("role must be user, support or admin"))
			return
		}
		if self, _ := currentAdminID(c); self == user.ID && role != user.Role {
			apperr.Respond(c, apperr.Validation("you cannot change your own role"))
			return
		}
		updates["role"] = role
	}
	if body.Password != nil {
		if len(*body.Password) < security.MinPasswordLength {
			apperr.Respond(c, apperr.Validation("Password must be at least 6 characters"))
			return
		}
		hash, errHash := security.HashPassword(*body.Password)
		if errHash != nil {
			apperr.Respond(c, apperr.Internal(errHash))
			return
		}
		updates["password"] = hash
	}

	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
		if store.IsDuplicateKey(errUpdate) {
			apperr.Respond(c, apperr.Conflict("email already registered"))
			return
		}
		apperr.Respond(c, apperr.Internal(errUpdate))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a user together with the ledger and counters.
func (h *UserHandler) Delete(c *gin.Context) {
	user, errLoad := h.load(c)
	if errLoad != nil {
		apperr.Respond(c, errLoad)
		return
	}
	if self, _ := currentAdminID(c); self == user.ID {
		apperr.Respond(c, apperr.Validation("you cannot delete your own account"))
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDel := tx.Where("user_id = ?", user.ID).Delete(&models.ToolUsage{}).Error; errDel != nil {
			return errDel
		}
		if errDel := tx.Where("user_id = ?", user.ID).Delete(&models.UsageRecord{}).Error; errDel != nil {
			return errDel
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if errTx != nil {
		apperr.Respond(c, apperr.Internal(errTx))
		return
	}
	log.WithField("user_id", user.ID).Info("admin: user deleted")
	c.Status(http.StatusNoContent)
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

// Suspend blocks the user from every tool.
func (h *UserHandler) Suspend(c *gin.Context) {
	var body suspendRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			apperr.Respond(c, apperr.Validation("invalid json"))
			return
		}
	}
	id, errID := parseID(c)
	if errID != nil {
		apperr.Respond(c, errID)
		return
	}
	if self, _ := currentAdminID(c); self == id {
		apperr.Respond(c, apperr.Validation("you cannot suspend your own account"))
		return
	}
	h.setSuspended(c, id, true, strings.TrimSpace(body.Reason))
}

// Unsuspend lifts a suspension.
func (h *UserHandler) Unsuspend(c *gin.Context) {
	id, errID := parseID(c)
	if errID != nil {
		apperr.Respond(c, errID)
		return
	}
	h.setSuspended(c, id, false, "")
}

func (h *UserHandler) setSuspended(c *gin.Context, id uint64, suspended bool, reason string) {
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_suspended":     suspended,
			"suspended_reason": reason,
			"updated_at":       h.now().UTC(),
		})
	if res.Error != nil {
		apperr.Respond(c, apperr.Internal(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		apperr.Respond(c, apperr.NotFound("user not found"))
		return
	}
	log.WithFields(log.Fields{"user_id": id, "suspended": suspended}).Info("admin: suspension changed")
	c.JSON(http.StatusOK, gin.H{"ok": true, "isSuspended": suspended})
}

type subscriptionRequest struct {
	Plan         string     `json:"plan" binding:"required"`
	Status       string     `json:"status" binding:"required"`
	TrialEndDate *time.Time `json:"trialEndDate"`
}

// UpdateSubscription changes the plan and status. A trial status needs an end date.
func (h *UserHandler) UpdateSubscription(c *gin.Context) {
	user, errLoad := h.load(c)
	if errLoad != nil {
		apperr.Respond(c, errLoad)
		return
	}
	var body subscriptionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("plan and status are required"))
		return
	}
	if !models.IsValidPlan(body.Plan) {
		apperr.Respond(c, apperr.Validation("unknown plan"))
		return
	}
	if !models.IsValidSubscriptionStatus(body.Status) {
		apperr.Respond(c, apperr.Validation("status must be trial, active or inactive"))
		return
	}

	now := h.now().UTC()
	sub := user.Subscription
	sub.Plan = body.Plan
	sub.Status = body.Status
	if body.Status == models.SubscriptionTrial {
		if body.TrialEndDate == nil && sub.TrialEndDate == nil {
			apperr.Respond(c, apperr.Validation("trialEndDate is required for a trial"))
			return
		}
		if body.TrialEndDate != nil {
			end := body.TrialEndDate.UTC()
			sub.TrialEndDate = &end
		}
		if sub.TrialStartDate == nil {
			sub.TrialStartDate = &now
		}
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"subscription_plan":             sub.Plan,
			"subscription_status":           sub.Status,
			"subscription_trial_start_date": sub.TrialStartDate,
			"subscription_trial_end_date":   sub.TrialEndDate,
			"updated_at":                    now,
		}).Error; errUpdate != nil {
		apperr.Respond(c, apperr.Internal(errUpdate))
		return
	}
	user.Subscription = sub
	log.WithFields(log.Fields{"user_id": user.ID, "plan": sub.Plan, "status": sub.Status}).Info("admin: subscription changed")
	c.JSON(http.StatusOK, formatUser(user, h.now()))
}

// RecomputeUsage rebuilds the user's counters from the ledger.
func (h *UserHandler) RecomputeUsage(c *gin.Context) {
	id, errID := parseID(c)
	if errID != nil {
		apperr.Respond(c, errID)
		return
	}
	snap, errRecompute := h.counters.Recompute(c.Request.Context(), id)
	if errRecompute != nil {
		if usage.IsUserMissing(errRecompute) {
			apperr.Respond(c, apperr.NotFound("user not found"))
			return
		}
		apperr.Respond(c, apperr.Internal(errRecompute))
		return
	}
	log.WithField("user_id", id).Info("admin: usage counters recomputed")
	c.JSON(http.StatusOK, gin.H{"usage": snap})
}

func (h *UserHandler) load(c *gin.Context) (*models.User, error) {
	id, errID := parseID(c)
	if errID != nil {
		return nil, errID
	}
	user, errFind := h.users.GetByID(c.Request.Context(), id)
	if errFind != nil {
		if errors.Is(errFind, store.ErrUserNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(errFind)
	}
	return user, nil
}
