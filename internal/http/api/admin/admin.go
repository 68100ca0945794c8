package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/config"
	handlers "github.com/marketforge/marketforge/internal/http/api/admin/handlers"
	"github.com/marketforge/marketforge/internal/http/api/admin/permissions"
	"github.com/marketforge/marketforge/internal/ratelimit"
	"github.com/marketforge/marketforge/internal/security"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps carries the services the admin API is built on.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	Registry *tools.Registry
	Limiter  *ratelimit.Manager
	Now      func() time.Time
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	db := deps.DB
	users := store.NewGormUserStore(db)

	adminGroup := r.Group("/api/admin")

	authHandler := handlers.NewAuthHandler(users, deps.JWT, deps.Limiter, deps.Now)
	adminGroup.POST("/login", authHandler.Login)

	selfAuthed := adminGroup.Group("")
	selfAuthed.Use(adminAuthMiddleware(users, deps.JWT))

	mfaHandler := handlers.NewMFAHandler(db)
	selfAuthed.GET("/mfa/status", mfaHandler.Status)
	selfAuthed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	selfAuthed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	selfAuthed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(users, deps.JWT))
	authed.Use(adminPermissionMiddleware())

	dashboardHandler := handlers.NewDashboardHandler(db, deps.Now)
	authed.GET("/dashboard/stats", dashboardHandler.Stats)

	userHandler := handlers.NewUserHandler(db, deps.Now)
	authed.POST("/users", userHandler.Create)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)
	authed.DELETE("/users/:id", userHandler.Delete)
	authed.POST("/users/:id/suspend", userHandler.Suspend)
	authed.POST("/users/:id/unsuspend", userHandler.Unsuspend)
	authed.PUT("/users/:id/subscription", userHandler.UpdateSubscription)
	authed.POST("/users/:id/usage/recompute", userHandler.RecomputeUsage)

	usageHandler := handlers.NewUsageHandler(db)
	authed.GET("/usage", usageHandler.List)
	authed.GET("/usage/:id", usageHandler.Get)

	planHandler := handlers.NewPlanHandler(db, deps.Registry)
	authed.POST("/plans", planHandler.Create)
	authed.GET("/plans", planHandler.List)
	authed.GET("/plans/:id", planHandler.Get)
	authed.PUT("/plans/:id", planHandler.Update)
	authed.DELETE("/plans/:id", planHandler.Delete)

	settingHandler := handlers.NewSettingHandler(db)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}

// adminAuthMiddleware validates the admin token and requires a staff account.
func adminAuthMiddleware(users *store.GormUserStore, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			apperr.Abort(c, apperr.Auth(apperr.CodeUnauthorized, "missing authorization"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			apperr.Abort(c, apperr.Auth(apperr.CodeInvalidToken, "invalid authorization"))
			return
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			apperr.Abort(c, apperr.Auth(apperr.CodeInvalidToken, "invalid authorization"))
			return
		}

		claims, errParse := security.ParseAdminToken(jwtCfg.Secret, token)
		if errParse != nil {
			apperr.Abort(c, apperr.Auth(apperr.CodeInvalidToken, "invalid token"))
			return
		}

		user, errFind := users.GetByID(c.Request.Context(), claims.UserID)
		if errFind != nil {
			if errors.Is(errFind, store.ErrUserNotFound) {
				apperr.Abort(c, apperr.Auth(apperr.CodeUnauthorized, "admin not found"))
				return
			}
			apperr.Abort(c, apperr.Internal(errFind))
			return
		}
		// Role and suspension are read from the database, not the token.
		if !user.IsStaff() || user.IsSuspended {
			apperr.Abort(c, apperr.Authorization(apperr.CodeForbidden, "admin access revoked"))
			return
		}

		c.Set(handlers.AdminIDKey, user.ID)
		c.Set(handlers.AdminRoleKey, user.Role)
		c.Next()
	}
}

// adminPermissionMiddleware checks the route against the role capability table.
func adminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(handlers.AdminRoleKey)
		path := c.FullPath()
		if path == "" {
			c.Next()
			return
		}
		key := permissions.Key(c.Request.Method, path)
		if !permissions.RoleAllows(role, key) {
			log.WithFields(log.Fields{
				"admin_id":   c.GetUint64(handlers.AdminIDKey),
				"role":       role,
				"permission": key,
			}).Warn("admin: permission denied")
			apperr.Abort(c, apperr.Authorization(apperr.CodeForbidden, "forbidden"))
			return
		}
		c.Next()
	}
}
