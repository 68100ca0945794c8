package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/gorm"
)

// ToolCount is one entry of the toolsUsed list.
type ToolCount struct {
	ToolID     string    `json:"toolId"`
	UsageCount int64     `json:"usageCount"`
	LastUsed   time.Time `json:"lastUsed"`
}

// Snapshot is the aggregate usage view of a user.
type Snapshot struct {
	TotalGenerations   int64       `json:"totalGenerations"`
	MonthlyGenerations int64       `json:"monthlyGenerations"`
	ToolsUsed          []ToolCount `json:"toolsUsed"`
}

// Counters reads and repairs the aggregate counters.
type Counters struct {
	db *gorm.DB
}

// NewCounters constructs Counters.
func NewCounters(db *gorm.DB) *Counters {
	return &Counters{db: db}
}

// Snapshot returns the counters of userID.
func (c *Counters) Snapshot(ctx context.Context, userID uint64) (Snapshot, error) {
	return snapshot(c.db.WithContext(ctx), userID)
}

// Recompute rebuilds the counters of userID from successful ledger entries.
func (c *Counters) Recompute(ctx context.Context, userID uint64) (Snapshot, error) {
	var out Snapshot
	errTx := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := tx.Select("id", "monthly_reset_at").First(&user, userID).Error; errFind != nil {
			return errFind
		}

		success := tx.Model(&models.UsageRecord{}).Where("user_id = ? AND status = ?", userID, models.UsageStatusSuccess)

		var total int64
		if errCount := success.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
			return errCount
		}
		monthStart := startOfMonth(time.Now())
		if user.MonthlyResetAt != nil && user.MonthlyResetAt.After(monthStart) {
			monthStart = user.MonthlyResetAt.UTC()
		}
		var monthly int64
		if errCount := success.Session(&gorm.Session{}).Where("created_at >= ?", monthStart).Count(&monthly).Error; errCount != nil {
			return errCount
		}

		var perTool []struct {
			ToolID string
			Count  int64
		}
		if errScan := success.Session(&gorm.Session{}).
			Select("tool_id, COUNT(*) AS count").
			Group("tool_id").
			Scan(&perTool).Error; errScan != nil {
			return errScan
		}
		lastUsed, errLast := latestPerTool(tx, userID)
		if errLast != nil {
			return errLast
		}

		if errDelete := tx.Where("user_id = ?", userID).Delete(&models.ToolUsage{}).Error; errDelete != nil {
			return errDelete
		}
		for _, row := range perTool {
			usage := models.ToolUsage{UserID: userID, ToolID: row.ToolID, UsageCount: row.Count, LastUsed: lastUsed[row.ToolID]}
			if errCreate := tx.Create(&usage).Error; errCreate != nil {
				return errCreate
			}
		}
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(map[string]any{
			"total_generations":   total,
			"monthly_generations": monthly,
		}).Error; errUpdate != nil {
			return errUpdate
		}

		snap, errSnap := snapshot(tx, userID)
		out = snap
		return errSnap
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			return Snapshot{}, errUserMissing
		}
		return Snapshot{}, fmt.Errorf("usage: recompute: %w", errTx)
	}
	return out, nil
}

// IsUserMissing reports whether err means the user row is gone.
func IsUserMissing(err error) bool {
	return errors.Is(err, errUserMissing)
}

// latestPerTool loads the newest success timestamp per tool as typed times.
func latestPerTool(tx *gorm.DB, userID uint64) (map[string]time.Time, error) {
	var rows []models.UsageRecord
	if errFind := tx.Select("tool_id", "created_at").
		Where("user_id = ? AND status = ?", userID, models.UsageStatusSuccess).
		Order("created_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	out := make(map[string]time.Time)
	for _, row := range rows {
		if _, ok := out[row.ToolID]; !ok {
			out[row.ToolID] = row.CreatedAt
		}
	}
	return out, nil
}

func snapshot(tx *gorm.DB, userID uint64) (Snapshot, error) {
	var user models.User
	if errFind := tx.Select("id", "total_generations", "monthly_generations").First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Snapshot{}, errUserMissing
		}
		return Snapshot{}, errFind
	}
	var rows []models.ToolUsage
	if errFind := tx.Where("user_id = ?", userID).Order("usage_count DESC, tool_id ASC").Find(&rows).Error; errFind != nil {
		return Snapshot{}, errFind
	}
	out := Snapshot{
		TotalGenerations:   user.TotalGenerations,
		MonthlyGenerations: user.MonthlyGenerations,
		ToolsUsed:          make([]ToolCount, 0, len(rows)),
	}
	for _, row := range rows {
		out.ToolsUsed = append(out.ToolsUsed, ToolCount{ToolID: row.ToolID, UsageCount: row.UsageCount, LastUsed: row.LastUsed})
	}
	return out, nil
}

func startOfMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
