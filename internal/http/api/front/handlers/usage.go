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
	"github.com/marketforge/marketforge/internal/usage"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 365
)

// UsageHandler serves the caller's generation history and counters.
type UsageHandler struct {
	ledger   *ledger.Store
	counters *usage.Counters
	now      func() time.Time
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(store *ledger.Store, counters *usage.Counters, now func() time.Time) *UsageHandler {
	if now == nil {
		now = time.Now
	}
	return &UsageHandler{ledger: store, counters: counters, now: now}
}

type historyQuery struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	ToolID string `form:"toolId"`
	Status string `form:"status"`
	From   string `form:"from"`
	To     string `form:"to"`
}

// bindFilter parses the shared history filter parameters.
func bindFilter(c *gin.Context) (historyQuery, ledger.Filter, error) {
	var q historyQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		return q, ledger.Filter{}, apperr.Validation("invalid query").Wrap(errBind)
	}
	status := strings.TrimSpace(q.Status)
	if status != "" && status != models.UsageStatusSuccess && status != models.UsageStatusError {
		return q, ledger.Filter{}, apperr.Validation("status must be success or error")
	}
	from, errFrom := parseTimeParam(q.From)
	if errFrom != nil {
		return q, ledger.Filter{}, errFrom
	}
	to, errTo := parseTimeParam(q.To)
	if errTo != nil {
		return q, ledger.Filter{}, errTo
	}
	return q, ledger.Filter{ToolID: strings.TrimSpace(q.ToolID), Status: status, From: from, To: to}, nil
}

// History returns the caller's ledger entries, newest first.
func (h *UsageHandler) History(c *gin.Context) {
	userID, errUser := currentUserID(c)
	if errUser != nil {
		apperr.Respond(c, errUser)
		return
	}
	q, filter, errFilter := bindFilter(c)
	if errFilter != nil {
		apperr.Respond(c, errFilter)
		return
	}
	res, errQuery := h.ledger.Query(c.Request.Context(), userID, filter, ledger.Page{Page: q.Page, Limit: q.Limit})
	if errQuery != nil {
		apperr.Respond(c, apperr.Internal(errQuery))
		return
	}
	out := make([]gin.H, 0, len(res.Records))
	for _, row := range res.Records {
		out = append(out, recordPayload(row, false))
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

// Detail returns one of the caller's ledger entries with its input and output.
func (h *UsageHandler) Detail(c *gin.Context) {
	userID, errUser := currentUserID(c)
	if errUser != nil {
		apperr.Respond(c, errUser)
		return
	}
	id, errID := parseID(c, "id")
	if errID != nil {
		apperr.Respond(c, errID)
		return
	}
	row, errGet := h.ledger.Get(c.Request.Context(), userID, id)
	if errGet != nil {
		if errors.Is(errGet, ledger.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("Usage record not found"))
			return
		}
		apperr.Respond(c, apperr.Internal(errGet))
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": recordPayload(*row, true)})
}

// Export returns up to ledger.MaxExport matching entries with payloads.
func (h *UsageHandler) Export(c *gin.Context) {
	userID, errUser := currentUserID(c)
	if errUser != nil {
		apperr.Respond(c, errUser)
		return
	}
	_, filter, errFilter := bindFilter(c)
	if errFilter != nil {
		apperr.Respond(c, errFilter)
		return
	}
	rows, errExport := h.ledger.Export(c.Request.Context(), userID, filter)
	if errExport != nil {
		apperr.Respond(c, apperr.Internal(errExport))
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, recordPayload(row, true))
	}
	c.Header("Content-Disposition", `attachment; filename="usage-history.json"`)
	c.JSON(http.StatusOK, gin.H{
		"exportedAt": h.now().UTC(),
		"count":      len(out),
		"records":    out,
	})
}

type statsQuery struct {
	Days int `form:"days,default=30"`
}

// Stats returns the caller's counters plus per-tool and per-day aggregates.
func (h *UsageHandler) Stats(c *gin.Context) {
	userID, errUser := currentUserID(c)
	if errUser != nil {
		apperr.Respond(c, errUser)
		return
	}
	var q statsQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		apperr.Respond(c, apperr.Validation("invalid query").Wrap(errBind))
		return
	}
	if q.Days <= 0 {
		q.Days = defaultStatsDays
	}
	if q.Days > maxStatsDays {
		q.Days = maxStatsDays
	}

	ctx := c.Request.Context()
	snap, errSnap := h.counters.Snapshot(ctx, userID)
	if errSnap != nil {
		if usage.IsUserMissing(errSnap) {
			apperr.Respond(c, apperr.Auth(apperr.CodeUnauthorized, "User not found"))
			return
		}
		apperr.Respond(c, apperr.Internal(errSnap))
		return
	}
	since := h.now().UTC().AddDate(0, 0, -q.Days)
	stats, errStats := h.ledger.Stats(ctx, userID, since)
	if errStats != nil {
		apperr.Respond(c, apperr.Internal(errStats))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usage": snap,
		"stats": stats,
		"days":  q.Days,
	})
}
