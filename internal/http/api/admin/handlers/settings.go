package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/models"
	internalsettings "github.com/marketforge/marketforge/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingHandler manages admin CRUD for settings values.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// createSettingRequest captures the payload for creating a setting.
type createSettingRequest struct {
	Key   string          `json:"key"`   // Setting key.
	Value json.RawMessage `json:"value"` // JSON value payload.
}

var positiveIntSettingKeys = map[string]struct{}{
	internalsettings.TrialDaysKey:                   {},
	internalsettings.RateLimitWindowSecondsKey:      {},
	internalsettings.RateLimitLoginWindowSecondsKey: {},
}

var nonNegativeIntSettingKeys = map[string]struct{}{
	internalsettings.RateLimitGenerateKey: {},
	internalsettings.RateLimitLoginKey:    {},
	internalsettings.RateLimitRedisDBKey:  {},
}

var boolSettingKeys = map[string]struct{}{
	internalsettings.RateLimitRedisEnabledKey: {},
}

var (
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBooleanValue            = errors.New("value must be a boolean")
	errGenerationModeValue     = errors.New(`value must be "llm" or "placeholder"`)
	errEmptyValue              = errors.New("value is required")
)

// Create validates and inserts a setting, then refreshes the snapshot.
func (h *SettingHandler) Create(c *gin.Context) {
	var body createSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid json"))
		return
	}

	key := strings.TrimSpace(body.Key)
	if key == "" {
		apperr.Respond(c, apperr.Validation("key is required"))
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		apperr.Respond(c, apperr.Validation(errValidate.Error()))
		return
	}

	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.Setting{}).Where("key = ?", key).Count(&count).Error; errCount != nil {
		apperr.Respond(c, apperr.Internal(errCount))
		return
	}
	if count > 0 {
		apperr.Respond(c, apperr.Conflict("key already exists"))
		return
	}

	setting := models.Setting{Key: key, Value: models.JSONText(body.Value)}
	if errCreate := h.db.WithContext(ctx).Create(&setting).Error; errCreate != nil {
		apperr.Respond(c, apperr.Internal(errCreate))
		return
	}
	if errRefresh := h.refresh(ctx, key); errRefresh != nil {
		apperr.Respond(c, errRefresh)
		return
	}
	c.JSON(http.StatusCreated, formatSetting(&setting))
}

// List returns all settings sorted by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatSetting(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out, "snapshotUpdatedAt": internalsettings.DBConfigUpdatedAt()})
}

// Get returns a setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		apperr.Respond(c, apperr.Validation("invalid key"))
		return
	}
	var setting models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&setting).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("setting not found"))
			return
		}
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}
	c.JSON(http.StatusOK, formatSetting(&setting))
}

type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New JSON value.
}

// Update updates a setting value and refreshes the snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		apperr.Respond(c, apperr.Validation("invalid key"))
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid json"))
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		apperr.Respond(c, apperr.Validation(errValidate.Error()))
		return
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.Setting{}).Where("key = ?", key).Update("value", models.JSONText(body.Value))
	if res.Error != nil {
		apperr.Respond(c, apperr.Internal(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		apperr.Respond(c, apperr.NotFound("setting not found"))
		return
	}
	if errRefresh := h.refresh(ctx, key); errRefresh != nil {
		apperr.Respond(c, errRefresh)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a setting and refreshes the snapshot. Readers fall back to defaults.
func (h *SettingHandler) Delete(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		apperr.Respond(c, apperr.Validation("invalid key"))
		return
	}
	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{})
	if res.Error != nil {
		apperr.Respond(c, apperr.Internal(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		apperr.Respond(c, apperr.NotFound("setting not found"))
		return
	}
	if errRefresh := h.refresh(ctx, key); errRefresh != nil {
		apperr.Respond(c, errRefresh)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SettingHandler) refresh(ctx context.Context, key string) error {
	if errRefresh := internalsettings.Refresh(ctx, h.db); errRefresh != nil {
		return apperr.Internal(errRefresh)
	}
	log.WithFields(log.Fields{
		"key":        key,
		"updated_at": internalsettings.DBConfigUpdatedAt(),
	}).Info("admin: settings snapshot refreshed")
	return nil
}

func validateSettingValue(key string, value json.RawMessage) error {
	if len(strings.TrimSpace(string(value))) == 0 {
		return errEmptyValue
	}
	if _, ok := positiveIntSettingKeys[key]; ok {
		if _, valid := internalsettings.ParsePositiveInt(value); !valid {
			return errPositiveIntegerValue
		}
		return nil
	}
	if _, ok := nonNegativeIntSettingKeys[key]; ok {
		if _, valid := internalsettings.ParseNonNegativeInt(value); !valid {
			return errNonNegativeIntegerValue
		}
		return nil
	}
	if _, ok := boolSettingKeys[key]; ok {
		if _, valid := internalsettings.ParseBool(value); !valid {
			return errBooleanValue
		}
		return nil
	}
	if key == internalsettings.GenerationModeKey {
		mode, _ := internalsettings.ParseString(value)
		if mode != internalsettings.GenerationModeLLM && mode != internalsettings.GenerationModePlaceholder {
			return errGenerationModeValue
		}
	}
	return nil
}

func formatSetting(s *models.Setting) gin.H {
	return gin.H{
		"key":       s.Key,
		"value":     s.Value,
		"updatedAt": s.UpdatedAt,
	}
}
