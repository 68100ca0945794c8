package models

import (
	"time"

	"gorm.io/datatypes"
)

// Usage record statuses.
const (
	UsageStatusSuccess = "success"
	UsageStatusError   = "error"
)

// UsageRecord is one immutable ledger entry per generation attempt.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64 `gorm:"not null;index:idx_usage_records_user_created,priority:1"`
	ToolID   string `gorm:"type:varchar(64);not null;index"`
	ToolName string `gorm:"type:varchar(255);not null"`

	Input  datatypes.JSON // Request input as submitted.
	Output datatypes.JSON // Generated output; empty on error.

	ProcessingTimeMs int64  `gorm:"not null;default:0"`              // Wall-clock generation time.
	Status           string `gorm:"type:varchar(16);not null;index"` // success or error.
	ErrorMessage     string `gorm:"type:text"`                       // Set when status is error.

	CreatedAt time.Time `gorm:"not null;index:idx_usage_records_user_created,priority:2;index"`
}
