package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/plancatalog"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlanHandler manages admin CRUD endpoints for the plan catalogue.
type PlanHandler struct {
	db       *gorm.DB        // Database handle for plan records.
	registry *tools.Registry // Known tool IDs.
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(db *gorm.DB, registry *tools.Registry) *PlanHandler {
	return &PlanHandler{db: db, registry: registry}
}

// normalizePlanTools validates a tool ID list against the registry.
func (h *PlanHandler) normalizePlanTools(planKey string, raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON([]byte("[]")), nil
	}
	var ids []string
	if errUnmarshal := json.Unmarshal(raw, &ids); errUnmarshal != nil {
		return nil, errors.New("tools must be an array of tool ids")
	}
	cleaned := plancatalog.ParseToolIDs(raw)
	if planKey == models.PlanFreeTrial && len(cleaned) > 0 {
		return nil, errors.New("free trial tools follow each tool's freeInTrial flag")
	}
	for _, id := range cleaned {
		if _, ok := h.registry.Get(id); !ok {
			return nil, fmt.Errorf("unknown tool id %q", id)
		}
	}
	rawTools, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(rawTools), nil
}

func normalizeFeatures(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON([]byte("[]")), nil
	}
	var features []string
	if errUnmarshal := json.Unmarshal(raw, &features); errUnmarshal != nil {
		return nil, errors.New("features must be an array of strings")
	}
	cleaned := make([]string, 0, len(features))
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			cleaned = append(cleaned, f)
		}
	}
	rawFeatures, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(rawFeatures), nil
}

// createPlanRequest captures the payload for creating a plan.
type createPlanRequest struct {
	Key         string          `json:"key"`         // Plan key.
	Name        string          `json:"name"`        // Display name.
	MonthPrice  float64         `json:"monthPrice"`  // Monthly price.
	Description string          `json:"description"` // Plan description.
	Tools       json.RawMessage `json:"tools"`       // Tool IDs; empty grants every tool.
	Features    json.RawMessage `json:"features"`    // Marketing bullet points.
	SortOrder   int             `json:"sortOrder"`   // Display order.
	IsEnabled   *bool           `json:"isEnabled"`   // Optional active flag.
}

// Create validates input and inserts a catalogue row for a known plan key.
func (h *PlanHandler) Create(c *gin.Context) {
	var body createPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid json"))
		return
	}

	key := strings.TrimSpace(body.Key)
	if !models.IsValidPlan(key) {
		apperr.Respond(c, apperr.Validation("key must be one of free_trial, starter, pro, agency"))
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		apperr.Respond(c, apperr.Validation("name is required"))
		return
	}
	if body.MonthPrice < 0 {
		apperr.Respond(c, apperr.Validation("monthPrice cannot be negative"))
		return
	}
	planTools, errTools := h.normalizePlanTools(key, body.Tools)
	if errTools != nil {
		apperr.Respond(c, apperr.Validation(errTools.Error()))
		return
	}
	features, errFeatures := normalizeFeatures(body.Features)
	if errFeatures != nil {
		apperr.Respond(c, apperr.Validation(errFeatures.Error()))
		return
	}

	isEnabled := true
	if body.IsEnabled != nil {
		isEnabled = *body.IsEnabled
	}

	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.Plan{}).Where("key = ?", key).Count(&count).Error; errCount != nil {
		apperr.Respond(c, apperr.Internal(errCount))
		return
	}
	if count > 0 {
		apperr.Respond(c, apperr.Conflict("plan key already exists"))
		return
	}

	now := time.Now().UTC()
	plan := models.Plan{
		Key:         key,
		Name:        strings.TrimSpace(body.Name),
		MonthPrice:  body.MonthPrice,
		Description: body.Description,
		Tools:       planTools,
		Features:    features,
		SortOrder:   body.SortOrder,
		IsEnabled:   isEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := h.db.WithContext(ctx).Create(&plan).Error; errCreate != nil {
		if store.IsDuplicateKey(errCreate) {
			apperr.Respond(c, apperr.Conflict("plan key already exists"))
			return
		}
		apperr.Respond(c, apperr.Internal(errCreate))
		return
	}
	if errRefresh := h.refresh(ctx); errRefresh != nil {
		apperr.Respond(c, errRefresh)
		return
	}
	c.JSON(http.StatusCreated, formatPlan(&plan))
}

// List returns all plans, optionally filtered by enabled flag.
func (h *PlanHandler) List(c *gin.Context) {
	enabledQ := strings.TrimSpace(c.Query("isEnabled"))

	q := h.db.WithContext(c.Request.Context()).Model(&models.Plan{})
	switch enabledQ {
	case "true", "1":
		q = q.Where("is_enabled = ?", true)
	case "false", "0":
		q = q.Where("is_enabled = ?", false)
	}

	var rows []models.Plan
	if errFind := q.Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatPlan(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Get fetches a plan by ID.
func (h *PlanHandler) Get(c *gin.Context) {
	plan, errFind := h.load(c)
	if errFind != nil {
		apperr.Respond(c, errFind)
		return
	}
	c.JSON(http.StatusOK, formatPlan(plan))
}

// updatePlanRequest captures optional fields for plan updates.
type updatePlanRequest struct {
	Name        *string          `json:"name"`        // Optional name update.
	MonthPrice  *float64         `json:"monthPrice"`  // Optional monthly price.
	Description *string          `json:"description"` // Optional description.
	Tools       *json.RawMessage `json:"tools"`       // Optional tool ID list.
	Features    *json.RawMessage `json:"features"`    // Optional bullet points.
	SortOrder   *int             `json:"sortOrder"`   // Optional display order.
	IsEnabled   *bool            `json:"isEnabled"`   // Optional active flag.
}

// Update validates and applies plan field updates. The key is immutable.
func (h *PlanHandler) Update(c *gin.Context) {
	existing, errFind := h.load(c)
	if errFind != nil {
		apperr.Respond(c, errFind)
		return
	}
	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid json"))
		return
	}

	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if body.Name != nil {
		n := strings.TrimSpace(*body.Name)
		if n == "" {
			apperr.Respond(c, apperr.Validation("name cannot be empty"))
			return
		}
		updates["name"] = n
	}
	if body.MonthPrice != nil {
		if *body.MonthPrice < 0 {
			apperr.Respond(c, apperr.Validation("monthPrice cannot be negative"))
			return
		}
		updates["month_price"] = *body.MonthPrice
	}
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if body.Tools != nil {
		planTools, errTools := h.normalizePlanTools(existing.Key, *body.Tools)
		if errTools != nil {
			apperr.Respond(c, apperr.Validation(errTools.Error()))
			return
		}
		updates["tools"] = planTools
	}
	if body.Features != nil {
		features, errFeatures := normalizeFeatures(*body.Features)
		if errFeatures != nil {
			apperr.Respond(c, apperr.Validation(errFeatures.Error()))
			return
		}
		updates["features"] = features
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsEnabled != nil {
		if !*body.IsEnabled && existing.Key == models.PlanFreeTrial {
			apperr.Respond(c, apperr.Validation("the free trial plan cannot be disabled"))
			return
		}
		updates["is_enabled"] = *body.IsEnabled
	}

	ctx := c.Request.Context()
	if errUpdate := h.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", existing.ID).Updates(updates).Error; errUpdate != nil {
		apperr.Respond(c, apperr.Internal(errUpdate))
		return
	}
	if errRefresh := h.refresh(ctx); errRefresh != nil {
		apperr.Respond(c, errRefresh)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a plan by ID. The free trial row is permanent.
func (h *PlanHandler) Delete(c *gin.Context) {
	existing, errFind := h.load(c)
	if errFind != nil {
		apperr.Respond(c, errFind)
		return
	}
	if existing.Key == models.PlanFreeTrial {
		apperr.Respond(c, apperr.Validation("the free trial plan cannot be deleted"))
		return
	}
	ctx := c.Request.Context()
	if errDelete := h.db.WithContext(ctx).Delete(&models.Plan{}, existing.ID).Error; errDelete != nil {
		apperr.Respond(c, apperr.Internal(errDelete))
		return
	}
	if errRefresh := h.refresh(ctx); errRefresh != nil {
		apperr.Respond(c, errRefresh)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PlanHandler) load(c *gin.Context) (*models.Plan, error) {
	id, errID := parseID(c)
	if errID != nil {
		return nil, errID
	}
	var plan models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).First(&plan, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("plan not found")
		}
		return nil, apperr.Internal(errFind)
	}
	return &plan, nil
}

func (h *PlanHandler) refresh(ctx context.Context) error {
	if errRefresh := plancatalog.Refresh(ctx, h.db); errRefresh != nil {
		return apperr.Internal(errRefresh)
	}
	log.WithField("updated_at", plancatalog.UpdatedAt()).Info("admin: plan catalogue refreshed")
	return nil
}

// formatPlan converts a plan model into a response payload.
func formatPlan(p *models.Plan) gin.H {
	return gin.H{
		"id":          p.ID,
		"key":         p.Key,
		"name":        p.Name,
		"monthPrice":  p.MonthPrice,
		"description": p.Description,
		"tools":       plancatalog.ParseToolIDs(p.Tools),
		"features":    p.Features,
		"sortOrder":   p.SortOrder,
		"isEnabled":   p.IsEnabled,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}
