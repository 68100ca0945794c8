package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan is the catalogue entry for a subscription plan key.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key         string  `gorm:"type:varchar(32);not null;uniqueIndex"` // free_trial, starter, pro or agency.
	Name        string  `gorm:"type:varchar(255);not null"`            // Display name.
	MonthPrice  float64 `gorm:"type:decimal(10,2);not null;default:0"` // Monthly price.
	Description string  `gorm:"type:text"`                             // Plan description.

	Tools    datatypes.JSON // Tool IDs granted by the plan; empty means every tool.
	Features datatypes.JSON // Marketing bullet points.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the plan is offered.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
