package models

import "time"

// interaction modes for a registered user
//
// A user in ModeConfiguring is mid-way through a multi-step configuration
// dialog; chat relay routing is suppressed for them so their answers are
// not forwarded to an admin.
const (
	ModeIdle        = "idle"
	ModeConfiguring = "configuring"
)

// UserRecord is a registered bot user. The primary key is the Telegram id.
type UserRecord struct {
	ID              int64  `gorm:"primaryKey"`
	Name            string `gorm:"type:varchar(128)"`
	Username        string `gorm:"type:varchar(64)"`
	InteractionMode string `gorm:"type:varchar(16);not null;default:'idle'"`
	JoinedAt        time.Time
	UpdatedAt       time.Time
}

// plan types offered by the subscription tiers
const (
	PlanPlus = "plus"
	PlanPro  = "pro"
)

// PremiumPlan is a user's active subscription. Billing is handled outside
// this service; the record is read for the analytics dashboard only.
type PremiumPlan struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	UserID         int64  `gorm:"uniqueIndex;not null"`
	PlanType       string `gorm:"type:varchar(16);not null"`
	AmountPaid     float64
	IsSudoLifetime bool `gorm:"default:false"`
	SubscribedAt   time.Time
	ExpiresAt      time.Time
}

// ActiveAt reports whether the plan is valid at the given instant.
func (p *PremiumPlan) ActiveAt(now time.Time) bool {
	return p.IsSudoLifetime || now.Before(p.ExpiresAt)
}
