package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/tools"
	"gorm.io/gorm"
)

// PlanFrontHandler serves plan-related front endpoints.
type PlanFrontHandler struct {
	db       *gorm.DB
	registry *tools.Registry
	policy   policy.Provider
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(db *gorm.DB, registry *tools.Registry, provider policy.Provider) *PlanFrontHandler {
	return &PlanFrontHandler{db: db, registry: registry, policy: provider}
}

// List returns enabled plans with the tools each one unlocks.
func (h *PlanFrontHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&plans).Error; errFind != nil {
		apperr.Respond(c, apperr.Internal(errFind))
		return
	}

	table := h.policy().Table()
	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		var features []string
		if len(plan.Features) > 0 {
			_ = json.Unmarshal(plan.Features, &features)
		}
		if features == nil {
			features = []string{}
		}
		out = append(out, gin.H{
			"id":          plan.ID,
			"key":         plan.Key,
			"name":        plan.Name,
			"monthPrice":  plan.MonthPrice,
			"description": plan.Description,
			"features":    features,
			"tools":       table.Tools(plan.Key),
			"sortOrder":   plan.SortOrder,
		})
	}

	toolPlans := make([]gin.H, 0)
	for _, id := range h.registry.IDs() {
		toolPlans = append(toolPlans, gin.H{"id": id, "requiredPlan": table.RequiredPlan(id)})
	}

	c.JSON(http.StatusOK, gin.H{"plans": out, "tools": toolPlans})
}
