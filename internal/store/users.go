package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/security"
	internalsettings "github.com/marketforge/marketforge/internal/settings"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("store: user not found")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("store: email already registered")
)

// NewUser holds registration input. Password is plaintext and hashed on create.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// GormUserStore persists users and their subscriptions via GORM.
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore constructs a GormUserStore.
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByID loads a user by primary key.
func (s *GormUserStore) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: load user %d: %w", id, errFind)
	}
	return &user, nil
}

// GetByEmail loads a user by normalized email.
func (s *GormUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: load user by email: %w", errFind)
	}
	return &user, nil
}

// Create registers a user on a fresh free trial that ends TRIAL_DAYS after now.
func (s *GormUserStore) Create(ctx context.Context, in NewUser, now time.Time) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	hash, errHash := security.HashPassword(in.Password)
	if errHash != nil {
		return nil, errHash
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = models.RoleUser
	}

	now = now.UTC()
	trialEnd := now.Add(time.Duration(TrialDays()) * 24 * time.Hour)
	user := models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: hash,
		Role:     role,
		Subscription: models.Subscription{
			Plan:           models.PlanFreeTrial,
			Status:         models.SubscriptionTrial,
			TrialStartDate: &now,
			TrialEndDate:   &trialEnd,
		},
		MonthlyResetAt: &now,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return ErrEmailTaken
		}
		return tx.Create(&user).Error
	})
	if errTx != nil {
		if errors.Is(errTx, ErrEmailTaken) || IsDuplicateKey(errTx) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("store: create user: %w", errTx)
	}
	return &user, nil
}

// TouchLogin stamps the last successful login.
func (s *GormUserStore) TouchLogin(ctx context.Context, id uint64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", now.UTC()).Error
}

// TrialDays returns the configured trial length in days.
func TrialDays() int {
	return internalsettings.Int(internalsettings.TrialDaysKey, internalsettings.DefaultTrialDays)
}

// IsDuplicateKey reports whether err is a unique constraint violation from either backend.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
