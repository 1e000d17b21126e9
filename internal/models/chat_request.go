package models

import "time"

// RequestStatus is the lifecycle state of a contact request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDenied   RequestStatus = "denied"
)

// ChatRequest records a user's ask to speak with an admin.
//
// PendingUser mirrors UserID while the request is pending and is cleared
// when the request resolves. The unique index on it enforces at most one
// pending request per user at the database level, so concurrent creates
// from either bot runtime cannot both succeed.
type ChatRequest struct {
	ID          string        `gorm:"primaryKey;type:char(36)"`
	UserID      int64         `gorm:"index;not null"`
	Status      RequestStatus `gorm:"type:varchar(16);not null;index"`
	PendingUser *int64        `gorm:"uniqueIndex"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
