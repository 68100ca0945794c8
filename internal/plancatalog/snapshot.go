package plancatalog

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/gorm"
)

type snapshot struct {
	updatedAt   time.Time
	toolsByPlan map[string][]string
	enabled     map[string]bool
}

var globalSnapshot atomic.Value

func init() {
	globalSnapshot.Store(snapshot{
		toolsByPlan: make(map[string][]string),
		enabled:     make(map[string]bool),
	})
}

// StorePlans replaces the in-memory snapshot of plan tool overrides.
func StorePlans(updatedAt time.Time, rows []models.Plan) {
	nextTools := make(map[string][]string, len(rows))
	nextEnabled := make(map[string]bool, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		nextEnabled[key] = row.IsEnabled
		ids := ParseToolIDs(row.Tools)
		if len(ids) > 0 {
			nextTools[key] = ids
		}
	}
	globalSnapshot.Store(snapshot{
		updatedAt:   updatedAt.UTC(),
		toolsByPlan: nextTools,
		enabled:     nextEnabled,
	})
}

// Refresh reloads the snapshot from the plans table.
func Refresh(ctx context.Context, db *gorm.DB) error {
	var rows []models.Plan
	if errFind := db.WithContext(ctx).Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		return errFind
	}
	updatedAt := time.Time{}
	for _, row := range rows {
		if row.UpdatedAt.After(updatedAt) {
			updatedAt = row.UpdatedAt
		}
	}
	StorePlans(updatedAt, rows)
	return nil
}

// ToolOverrides returns a copy of the per-plan tool lists configured in the catalogue.
func ToolOverrides() map[string][]string {
	snap := loadSnapshot()
	out := make(map[string][]string, len(snap.toolsByPlan))
	for plan, ids := range snap.toolsByPlan {
		out[plan] = append([]string(nil), ids...)
	}
	return out
}

// IsEnabled reports whether a plan is offered. Plans missing from the catalogue count as enabled.
func IsEnabled(plan string) bool {
	enabled, ok := loadSnapshot().enabled[strings.TrimSpace(plan)]
	return !ok || enabled
}

// UpdatedAt returns when the snapshot source last changed.
func UpdatedAt() time.Time {
	return loadSnapshot().updatedAt
}

// ParseToolIDs decodes a JSON array of tool IDs, dropping blanks and duplicates.
func ParseToolIDs(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if errUnmarshal := json.Unmarshal(raw, &ids); errUnmarshal != nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func loadSnapshot() snapshot {
	snap, ok := globalSnapshot.Load().(snapshot)
	if !ok {
		return snapshot{toolsByPlan: make(map[string][]string), enabled: make(map[string]bool)}
	}
	if snap.toolsByPlan == nil {
		snap.toolsByPlan = make(map[string][]string)
	}
	if snap.enabled == nil {
		snap.enabled = make(map[string]bool)
	}
	return snap
}
