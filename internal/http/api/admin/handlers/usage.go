package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/ledger"
	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/gorm"
)

// UsageHandler exposes the ledger across every user.
type UsageHandler struct {
	ledger *ledger.Store
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(db *gorm.DB) *UsageHandler {
	return &UsageHandler{ledger: ledger.NewStore(db)}
}

type usageListQuery struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	UserID uint64 `form:"userId"`
	ToolID string `form:"toolId"`
	Status string `form:"status"`
	From   string `form:"from"`
	To     string `form:"to"`
}

func parseQueryTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, errParse := time.Parse(layout, raw); errParse == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("invalid date: " + raw)
}

// List returns ledger entries, newest first. userId narrows to one account.
func (h *UsageHandler) List(c *gin.Context) {
	var q usageListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid query"))
		return
	}
	status := strings.TrimSpace(q.Status)
	if status != "" && status != models.UsageStatusSuccess && status != models.UsageStatusError {
		apperr.Respond(c, apperr.Validation("status must be success or error"))
		return
	}
	from, errFrom := parseQueryTime(q.From)
	if errFrom != nil {
		apperr.Respond(c, errFrom)
		return
	}
	to, errTo := parseQueryTime(q.To)
	if errTo != nil {
		apperr.Respond(c, errTo)
		return
	}

	res, errQuery := h.ledger.Query(c.Request.Context(), q.UserID, ledger.Filter{
		ToolID: strings.TrimSpace(q.ToolID),
		Status: status,
		From:   from,
		To:     to,
	}, ledger.Page{Page: q.Page, Limit: q.Limit})
	if errQuery != nil {
		apperr.Respond(c, apperr.Internal(errQuery))
		return
	}

	out := make([]gin.H, 0, len(res.Records))
	for _, row := range res.Records {
		out = append(out, formatRecord(row, false))
	}
	c.JSON(http.StatusOK, gin.H{
		"records": out,
		"pagination": gin.H{
			"page":  res.Page,
			"limit": res.Limit,
			"total": res.Total,
			"pages": res.Pages,
		},
	})
}

// Get returns one entry with its payloads.
func (h *UsageHandler) Get(c *gin.Context) {
	id, errID := parseID(c)
	if errID != nil {
		apperr.Respond(c, errID)
		return
	}
	row, errGet := h.ledger.Get(c.Request.Context(), 0, id)
	if errGet != nil {
		if errors.Is(errGet, ledger.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("usage record not found"))
			return
		}
		apperr.Respond(c, apperr.Internal(errGet))
		return
	}
	c.JSON(http.StatusOK, formatRecord(*row, true))
}

func formatRecord(row models.UsageRecord, withPayload bool) gin.H {
	out := gin.H{
		"id":             row.ID,
		"userId":         row.UserID,
		"toolId":         row.ToolID,
		"toolName":       row.ToolName,
		"processingTime": row.ProcessingTimeMs,
		"status":         row.Status,
		"errorMessage":   row.ErrorMessage,
		"createdAt":      row.CreatedAt,
	}
	if withPayload {
		out["input"] = row.Input
		out["output"] = row.Output
	}
	return out
}
