package models

import "time"

// ToolUsage is the per-user per-tool counter derived from successful ledger entries.
type ToolUsage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64    `gorm:"not null;uniqueIndex:idx_tool_usages_user_tool,priority:1"`
	ToolID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_tool_usages_user_tool,priority:2"`
	UsageCount int64     `gorm:"not null;default:0"` // Successful invocations.
	LastUsed   time.Time `gorm:"not null"`           // Time of the latest success.
}
