package front

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/config"
	"github.com/marketforge/marketforge/internal/gateway"
	"github.com/marketforge/marketforge/internal/http/api/front/handlers"
	"github.com/marketforge/marketforge/internal/ledger"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/ratelimit"
	"github.com/marketforge/marketforge/internal/security"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	"github.com/marketforge/marketforge/internal/usage"
	"gorm.io/gorm"
)

// Deps carries the services the front API is built on.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	Registry *tools.Registry
	Policy   policy.Provider
	Gateway  *gateway.Gateway
	Limiter  *ratelimit.Manager
	Now      func() time.Time
}

// RegisterFrontRoutes registers the public API under /api.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	users := store.NewGormUserStore(deps.DB)
	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(users, deps.JWT, deps.Limiter, deps.Now)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	planHandler := handlers.NewPlanFrontHandler(deps.DB, deps.Registry, deps.Policy)
	api.GET("/plans", planHandler.List)

	authed := api.Group("")
	authed.Use(userAuthMiddleware(deps.JWT))
	authed.GET("/auth/me", authHandler.Me)

	toolHandler := handlers.NewToolHandler(users, deps.Registry, deps.Policy, deps.Gateway, deps.Now)
	authed.GET("/ai-tools", toolHandler.List)
	authed.POST("/ai-tools/:toolId/generate", toolHandler.Generate)

	usageHandler := handlers.NewUsageHandler(ledger.NewStore(deps.DB), usage.NewCounters(deps.DB), deps.Now)
	authed.GET("/ai-tools/usage-history", usageHandler.History)
	authed.GET("/ai-tools/usage-history/export", usageHandler.Export)
	authed.GET("/ai-tools/usage-history/:id", usageHandler.Detail)
	authed.GET("/ai-tools/usage-stats", usageHandler.Stats)
}

func userAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			apperr.Abort(c, apperr.Auth(apperr.CodeUnauthorized, "Not authorized, no token"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			apperr.Abort(c, apperr.Auth(apperr.CodeInvalidToken, "Not authorized, invalid token"))
			return
		}
		claims, errParse := security.ParseUserToken(jwtCfg.Secret, strings.TrimSpace(parts[1]))
		if errParse != nil {
			apperr.Abort(c, apperr.Auth(apperr.CodeInvalidToken, "Not authorized, invalid token"))
			return
		}
		c.Set(handlers.UserIDKey, claims.UserID)
		c.Next()
	}
}
