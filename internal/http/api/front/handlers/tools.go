package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/gateway"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
)

// ToolHandler lists tools and runs generations.
type ToolHandler struct {
	users    *store.GormUserStore
	registry *tools.Registry
	policy   policy.Provider
	gateway  *gateway.Gateway
	now      func() time.Time
}

// NewToolHandler constructs a ToolHandler.
func NewToolHandler(users *store.GormUserStore, registry *tools.Registry, provider policy.Provider, gw *gateway.Gateway, now func() time.Time) *ToolHandler {
	if now == nil {
		now = time.Now
	}
	return &ToolHandler{users: users, registry: registry, policy: provider, gateway: gw, now: now}
}

// List returns every tool annotated with the caller's access.
func (h *ToolHandler) List(c *gin.Context) {
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

	now := h.now()
	evaluator := h.policy()
	category := strings.TrimSpace(c.Query("category"))
	out := make([]gin.H, 0, len(h.registry.List()))
	for _, def := range h.registry.List() {
		if category != "" && def.Category != category {
			continue
		}
		d := evaluator.Evaluate(policy.InputFor(user, def.ID, now))
		entry := gin.H{
			"id":             def.ID,
			"name":           def.Name,
			"category":       def.Category,
			"description":    def.Description,
			"freeInTrial":    def.FreeInTrial,
			"requiredFields": def.Required,
			"hasAccess":      d.Allowed,
			"requiredPlan":   evaluator.Table().RequiredPlan(def.ID),
		}
		if !d.Allowed {
			entry["denyReason"] = string(d.Reason)
			if d.RequiredPlan != "" {
				entry["upgradeTo"] = d.RequiredPlan
			}
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"tools":        out,
		"subscription": subscriptionPayload(user.Subscription, now),
	})
}

type generateRequest struct {
	Input json.RawMessage `json:"input"`
}

// Generate runs one tool invocation for the caller.
func (h *ToolHandler) Generate(c *gin.Context) {
	userID, errUser := currentUserID(c)
	if errUser != nil {
		apperr.Respond(c, errUser)
		return
	}
	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("Request body must be a JSON object with an input field"))
		return
	}

	res, errInvoke := h.gateway.Invoke(c.Request.Context(), gateway.Request{
		UserID: userID,
		ToolID: c.Param("toolId"),
		Input:  body.Input,
	})
	if errInvoke != nil {
		apperr.Respond(c, errInvoke)
		return
	}

	out := gin.H{
		"success":        true,
		"output":         rawJSON(res.Output),
		"processingTime": res.ProcessingTime.Milliseconds(),
		"recordId":       res.RecordID,
	}
	if res.Usage != nil {
		out["usage"] = res.Usage
	}
	c.JSON(http.StatusOK, out)
}
