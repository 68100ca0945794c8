package handlers

import (
	"errors"
	"net/http"
	"strings"
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

// AuthHandler serves registration, login and the current-user endpoint.
type AuthHandler struct {
	users   *store.GormUserStore
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Manager
	now     func() time.Time
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *store.GormUserStore, jwtCfg config.JWTConfig, limiter *ratelimit.Manager, now func() time.Time) *AuthHandler {
	if now == nil {
		now = time.Now
	}
	return &AuthHandler{users: users, jwtCfg: jwtCfg, limiter: limiter, now: now}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account on a free trial and returns a token.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("Please provide name, a valid email and password").Wrap(errBind))
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		apperr.Respond(c, apperr.Validation("Name is required"))
		return
	}
	if len(body.Password) < security.MinPasswordLength {
		apperr.Respond(c, apperr.Validation("Password must be at least 6 characters"))
		return
	}

	now := h.now()
	user, errCreate := h.users.Create(c.Request.Context(), store.NewUser{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	}, now)
	if errCreate != nil {
		if errors.Is(errCreate, store.ErrEmailTaken) {
			apperr.Respond(c, apperr.Conflict("User already exists"))
			return
		}
		apperr.Respond(c, apperr.Internal(errCreate))
		return
	}

	token, expiresAt, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Role, h.jwtCfg.UserExpiry)
	if errToken != nil {
		apperr.Respond(c, apperr.Internal(errToken))
		return
	}
	log.WithField("user_id", user.ID).Info("auth: user registered")
	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      userPayload(user, now),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a token. Attempts are throttled per email.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("Please provide email and password"))
		return
	}
	email := store.NormalizeEmail(body.Email)

	if h.limiter != nil {
		decision := ratelimit.ResolveLimit(h.limiter.Settings(), ratelimit.ScopeLogin)
		res, errAllow := h.limiter.AllowDecision(c.Request.Context(), email, decision)
		if errAllow == nil && !res.Allowed {
			metrics.RateLimited.WithLabelValues("login").Inc()
			retry := int(res.RetryAfter(h.limiter.Now()).Seconds() + 0.999)
			apperr.Respond(c, apperr.RateLimit("Too many login attempts, please try again later", retry))
			return
		}
	}

	user, errFind := h.users.GetByEmail(c.Request.Context(), email)
	if errFind != nil && !errors.Is(errFind, store.ErrUserNotFound) {
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}
	if user == nil || !security.CheckPassword(user.Password, body.Password) {
		apperr.Respond(c, apperr.Auth(apperr.CodeInvalidLogin, "Invalid credentials"))
		return
	}

	now := h.now()
	if errTouch := h.users.TouchLogin(c.Request.Context(), user.ID, now); errTouch != nil {
		log.WithError(errTouch).WithField("user_id", user.ID).Warn("auth: failed to stamp last login")
	}
	token, expiresAt, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Role, h.jwtCfg.UserExpiry)
	if errToken != nil {
		apperr.Respond(c, apperr.Internal(errToken))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      userPayload(user, now),
	})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, errUser := currentUserID(c)
	if errUser != nil {
		apperr.Respond(c, errUser)
		return
	}
	user, errFind := h.users.GetByID(c.Request.Context(), userID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrUserNotFound) {
			apperr.Respond(c, apperr.Auth(apperr.CodeUnauthorized, "User not found"))
			return
		}
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userPayload(user, h.now())})
}
