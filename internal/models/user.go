package models

import "time"

// Roles recognized by the capability table.
const (
	RoleUser    = "user"
	RoleSupport = "support"
	RoleAdmin   = "admin"
)

// IsStaffRole reports whether role may sign in to the admin API.
func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleSupport
}

// Subscription plans, cheapest first.
const (
	PlanFreeTrial = "free_trial"
	PlanStarter   = "starter"
	PlanPro       = "pro"
	PlanAgency    = "agency"
)

// Subscription statuses.
const (
	SubscriptionTrial    = "trial"
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

// Plans lists every plan key in upgrade order.
var Plans = []string{PlanFreeTrial, PlanStarter, PlanPro, PlanAgency}

// IsValidPlan reports whether plan is a known plan key.
func IsValidPlan(plan string) bool {
	for _, p := range Plans {
		if p == plan {
			return true
		}
	}
	return false
}

// IsValidSubscriptionStatus reports whether status is a known subscription status.
func IsValidSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionTrial, SubscriptionActive, SubscriptionInactive:
		return true
	default:
		return false
	}
}

// Subscription is embedded into User with the subscription_ column prefix.
type Subscription struct {
	Plan   string `gorm:"type:varchar(32);not null;default:'free_trial'"` // Plan key.
	Status string `gorm:"type:varchar(16);not null;default:'trial'"`      // trial, active or inactive.

	TrialStartDate *time.Time
	TrialEndDate   *time.Time // Required while status is trial.
}

// IsTrialExpired reports whether a trial subscription has run out at now.
// A trial without an end date is treated as expired.
func (s Subscription) IsTrialExpired(now time.Time) bool {
	if s.Status != SubscriptionTrial {
		return false
	}
	if s.TrialEndDate == nil {
		return true
	}
	return !now.Before(*s.TrialEndDate)
}

// User represents an account stored in the database. Admins are users with role admin.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text"`                      // Display name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Lowercased login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	Role     string `gorm:"type:varchar(16);not null;default:'user';index"`

	Subscription Subscription `gorm:"embedded;embeddedPrefix:subscription_"`

	TotalGenerations   int64 `gorm:"not null;default:0"` // Lifetime successful generations.
	MonthlyGenerations int64 `gorm:"not null;default:0"` // Successful generations since MonthlyResetAt.

	MonthlyResetAt *time.Time

	IsSuspended     bool   `gorm:"not null;default:false"` // Suspended accounts cannot invoke tools.
	SuspendedReason string `gorm:"type:text"`

	TOTPSecret        string `gorm:"type:text"`              // Confirmed TOTP secret.
	TOTPPendingSecret string `gorm:"type:text"`              // Secret awaiting confirmation.
	TOTPEnabled       bool   `gorm:"not null;default:false"` // Whether login requires a TOTP code.

	LastLoginAt *time.Time

	ToolUsages []ToolUsage `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Per-tool counters.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsStaff reports whether the user may use the admin API.
func (u *User) IsStaff() bool {
	return u != nil && IsStaffRole(u.Role)
}
