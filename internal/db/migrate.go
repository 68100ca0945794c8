package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marketforge/marketforge/internal/models"
	internalsettings "github.com/marketforge/marketforge/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema and seeds default settings and plans.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Plan{},
		&models.User{},
		&models.ToolUsage{},
		&models.UsageRecord{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	seeds := []func(*gorm.DB) error{
		ensureDefaultPlans,
		ensureRateLimitSettings,
		ensureTrialSetting,
		ensureGenerationModeSetting,
	}
	for _, seed := range seeds {
		if errSeed := seed(conn); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

// defaultPlan describes a seeded catalogue row.
type defaultPlan struct {
	key      string
	name     string
	price    float64
	desc     string
	features []string
}

var defaultPlans = []defaultPlan{
	{models.PlanFreeTrial, "Free Trial", 0, "Seven days of the core agents.", []string{"4 core agents", "7-day access"}},
	{models.PlanStarter, "Starter", 29, "Every agent for solo marketers.", []string{"All agents", "Usage history"}},
	{models.PlanPro, "Pro", 79, "Every agent with priority support.", []string{"All agents", "Usage export", "Priority support"}},
	{models.PlanAgency, "Agency", 199, "Every agent for teams running many brands.", []string{"All agents", "Usage export", "Dedicated support"}},
}

// ensureDefaultPlans inserts missing catalogue rows without touching edited ones.
func ensureDefaultPlans(conn *gorm.DB) error {
	for i, plan := range defaultPlans {
		var count int64
		if errCount := conn.Model(&models.Plan{}).Where("key = ?", plan.key).Count(&count).Error; errCount != nil {
			return fmt.Errorf("db: check plan %s: %w", plan.key, errCount)
		}
		if count > 0 {
			continue
		}
		features, errMarshal := json.Marshal(plan.features)
		if errMarshal != nil {
			return fmt.Errorf("db: marshal plan features: %w", errMarshal)
		}
		now := time.Now().UTC()
		row := models.Plan{
			Key:         plan.key,
			Name:        plan.name,
			MonthPrice:  plan.price,
			Description: plan.desc,
			Tools:       datatypes.JSON([]byte("[]")),
			Features:    datatypes.JSON(features),
			SortOrder:   i,
			IsEnabled:   true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: create plan %s: %w", plan.key, errCreate)
		}
	}
	return nil
}

// ensureRateLimitSettings ensures the limiter settings exist with defaults.
func ensureRateLimitSettings(conn *gorm.DB) error {
	ints := []struct {
		key   string
		value int
	}{
		{internalsettings.RateLimitGenerateKey, internalsettings.DefaultRateLimitGenerate},
		{internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds},
		{internalsettings.RateLimitLoginKey, internalsettings.DefaultRateLimitLogin},
		{internalsettings.RateLimitLoginWindowSecondsKey, internalsettings.DefaultRateLimitLoginWindowSeconds},
	}
	for _, item := range ints {
		if errEnsure := ensureSetting(conn, item.key, item.value); errEnsure != nil {
			return errEnsure
		}
	}
	return ensureSetting(conn, internalsettings.RateLimitRedisEnabledKey, false)
}

func ensureTrialSetting(conn *gorm.DB) error {
	return ensureSetting(conn, internalsettings.TrialDaysKey, internalsettings.DefaultTrialDays)
}

func ensureGenerationModeSetting(conn *gorm.DB) error {
	return ensureSetting(conn, internalsettings.GenerationModeKey, internalsettings.DefaultGenerationMode)
}

// ensureSetting ensures a setting exists and fills it with value when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := models.JSONText(payload)

	var existing models.Setting
	res := conn.Where("key = ?", key).Limit(1).Find(&existing)
	if res.Error != nil {
		return fmt.Errorf("db: query %s setting: %w", key, res.Error)
	}
	if res.RowsAffected > 0 {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
