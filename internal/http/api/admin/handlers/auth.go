package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/config"
	"github.com/marketforge/marketforge/internal/metrics"
	"github.com/marketforge/marketforge/internal/ratelimit"
	"github.com/marketforge/marketforge/internal/security"
	"github.com/marketforge/marketforge/internal/store"
	log "github.com/sirupsen/logrus"
)

// AuthHandler issues admin tokens to staff accounts.
type AuthHandler struct {
	users   *store.GormUserStore
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Manager
	now     func() time.Time
}

// NewAuthHandler constructs an admin AuthHandler.
func NewAuthHandler(users *store.GormUserStore, jwtCfg config.JWTConfig, limiter *ratelimit.Manager, now func() time.Time) *AuthHandler {
	if now == nil {
		now = time.Now
	}
	return &AuthHandler{users: users, jwtCfg: jwtCfg, limiter: limiter, now: now}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totpCode"`
}

// Login authenticates a staff account. Accounts with TOTP enabled must send a valid code.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("Please provide email and password"))
		return
	}
	email := store.NormalizeEmail(body.Email)
	ctx := c.Request.Context()

	if h.limiter != nil {
		decision := ratelimit.ResolveLimit(h.limiter.Settings(), ratelimit.ScopeLogin)
		res, errAllow := h.limiter.AllowDecision(ctx, "admin:"+email, decision)
		if errAllow == nil && !res.Allowed {
			metrics.RateLimited.WithLabelValues("admin_login").Inc()
			retry := int(res.RetryAfter(h.limiter.Now()).Seconds() + 0.999)
			apperr.Respond(c, apperr.RateLimit("Too many login attempts, please try again later", retry))
			return
		}
	}

	user, errFind := h.users.GetByEmail(ctx, email)
	if errFind != nil && !errors.Is(errFind, store.ErrUserNotFound) {
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}
	if user == nil || !user.IsStaff() || !security.CheckPassword(user.Password, body.Password) {
		apperr.Respond(c, apperr.Auth(apperr.CodeInvalidLogin, "Invalid credentials"))
		return
	}

	now := h.now()
	if user.TOTPEnabled {
		if body.TOTPCode == "" {
			apperr.Respond(c, apperr.Auth(apperr.CodeMFARequired, "TOTP code required").With("mfa", "totp"))
			return
		}
		if !security.ValidateTOTPAt(user.TOTPSecret, body.TOTPCode, now.UTC()) {
			apperr.Respond(c, apperr.Auth(apperr.CodeInvalidLogin, "Invalid TOTP code"))
			return
		}
	}

	if errTouch := h.users.TouchLogin(ctx, user.ID, now); errTouch != nil {
		log.WithError(errTouch).WithField("admin_id", user.ID).Warn("admin: failed to stamp last login")
	}
	token, expiresAt, errToken := security.IssueAdminToken(h.jwtCfg.Secret, user.ID, user.Role, h.jwtCfg.AdminExpiry)
	if errToken != nil {
		apperr.Respond(c, apperr.Internal(errToken))
		return
	}
	log.WithFields(log.Fields{"admin_id": user.ID, "role": user.Role}).Info("admin: login")
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"admin": gin.H{
			"id":          user.ID,
			"name":        user.Name,
			"email":       user.Email,
			"role":        user.Role,
			"totpEnabled": user.TOTPEnabled,
		},
	})
}
