package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketforge/marketforge/internal/config"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/security"
	"github.com/marketforge/marketforge/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HasAdminInitialized reports whether the system has at least one admin account.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// EnsureBootstrapAdmin creates the configured admin when no admin exists yet.
// It returns true when an account was created.
func EnsureBootstrapAdmin(ctx context.Context, conn *gorm.DB, boot config.Bootstrap, now time.Time) (bool, error) {
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return false, errInit
	}
	if initialized {
		return false, nil
	}
	if boot.Email == "" || boot.Password == "" {
		log.Warn("no admin account exists; set ADMIN_EMAIL and ADMIN_PASSWORD to create one")
		return false, nil
	}
	if len(boot.Password) < security.MinPasswordLength {
		return false, fmt.Errorf("bootstrap admin password must be at least %d characters", security.MinPasswordLength)
	}

	users := store.NewGormUserStore(conn)
	existing, errFind := users.GetByEmail(ctx, boot.Email)
	if errFind != nil && !errors.Is(errFind, store.ErrUserNotFound) {
		return false, errFind
	}
	if existing != nil {
		// Promote the matching account instead of failing on the unique email.
		if errUpdate := conn.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", existing.ID).
			Update("role", models.RoleAdmin).Error; errUpdate != nil {
			return false, fmt.Errorf("promote bootstrap admin: %w", errUpdate)
		}
		log.WithField("user_id", existing.ID).Info("bootstrap admin promoted")
		return true, nil
	}

	user, errCreate := users.Create(ctx, store.NewUser{
		Name:     boot.Name,
		Email:    boot.Email,
		Password: boot.Password,
		Role:     models.RoleAdmin,
	}, now)
	if errCreate != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", errCreate)
	}
	log.WithField("user_id", user.ID).Info("bootstrap admin created")
	return true, nil
}
