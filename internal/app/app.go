package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/config"
	"github.com/marketforge/marketforge/internal/db"
	"github.com/marketforge/marketforge/internal/gateway"
	"github.com/marketforge/marketforge/internal/generation"
	"github.com/marketforge/marketforge/internal/http/api/admin"
	"github.com/marketforge/marketforge/internal/http/api/front"
	"github.com/marketforge/marketforge/internal/http/middleware"
	"github.com/marketforge/marketforge/internal/metrics"
	"github.com/marketforge/marketforge/internal/plancatalog"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/ratelimit"
	internalsettings "github.com/marketforge/marketforge/internal/settings"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	"github.com/marketforge/marketforge/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	limiterSweepInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	log.WithField("database", DescribeDSN(dsn)).Info("running migrations")
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the HTTP API and blocks until ctx is cancelled.
// A positive portOverride takes precedence over the configured port.
func RunServer(ctx context.Context, appCfg config.AppConfig, portOverride int) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portOverride > 0 {
		cfg.Port = portOverride
	}
	ConfigureLogging(cfg)
	apperr.ExposeDetails(cfg.IsDevelopment())

	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	log.WithField("database", DescribeDSN(cfg.DatabaseDSN)).Info("database connected")
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load settings: %w", errRefresh)
	}
	if errRefresh := plancatalog.Refresh(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load plans: %w", errRefresh)
	}
	if _, errBoot := EnsureBootstrapAdmin(ctx, conn, cfg.Admin, time.Now()); errBoot != nil {
		return errBoot
	}

	limiter := ratelimit.NewManager(nil, nil, nil)
	limiter.StartSweeper(ctx, limiterSweepInterval)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter")
		}
	}()

	reset, err := usage.NewMonthlyReset(conn, usage.DefaultMonthlyResetSchedule)
	if err != nil {
		return err
	}
	reset.Start(ctx)

	engine := NewEngine(conn, cfg, limiter)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
		}).Info("http server listening")
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down http server")
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

// NewEngine assembles the gin engine with every route registered.
func NewEngine(conn *gorm.DB, cfg config.Config, limiter *ratelimit.Manager) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.CORS(cfg.FrontendURL),
		metrics.Middleware(),
	)

	engine.GET("/healthz", healthHandler(conn))
	engine.GET("/metrics", metrics.Handler())

	registry := tools.Default()
	provider := policy.CatalogProvider(registry)

	var llm generation.Generator
	if cfg.LLM.APIKey != "" {
		llm = generation.NewLLMGenerator(cfg.LLM)
	} else {
		log.Warn("llm api key not configured; tools will return placeholder output")
	}

	gw := gateway.New(gateway.Config{
		Registry: registry,
		Users:    store.NewGormUserStore(conn),
		Limiter:  limiter,
		Limits: func() ratelimit.Decision {
			return ratelimit.ResolveLimit(limiter.Settings(), ratelimit.ScopeGenerate)
		},
		Policy:    provider,
		Generator: generation.NewRouter(llm),
		Recorder:  usage.NewRecorder(conn),
		Timeout:   cfg.LLM.Timeout,
	})

	front.RegisterFrontRoutes(engine, front.Deps{
		DB:       conn,
		JWT:      cfg.JWT,
		Registry: registry,
		Policy:   provider,
		Gateway:  gw,
		Limiter:  limiter,
	})
	admin.RegisterAdminRoutes(engine, admin.Deps{
		DB:       conn,
		JWT:      cfg.JWT,
		Registry: registry,
		Limiter:  limiter,
	})
	return engine
}

func healthHandler(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, errDB := conn.DB()
		if errDB == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			errDB = sqlDB.PingContext(ctx)
			cancel()
		}
		if errDB != nil {
			log.WithError(errDB).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	}
}
