package models

import "time"

// ChatSession is an active bidirectional relay between one admin and one user.
//
// ActiveAdmin and ActiveUser mirror AdminID and TargetUserID while the
// session is live and are both cleared when it ends. Their unique indexes
// enforce the one-active-session-per-admin and one-active-session-per-user
// invariants at the store, which is the sole serialization point between
// the two bot runtimes.
type ChatSession struct {
	ID           string `gorm:"primaryKey;type:char(36)"`
	AdminID      int64  `gorm:"index;not null"`
	TargetUserID int64  `gorm:"index;not null"`
	ActiveAdmin  *int64 `gorm:"uniqueIndex"`
	ActiveUser   *int64 `gorm:"uniqueIndex"`
	EndedAt      *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Messages []ChatMessage `gorm:"foreignKey:SessionID"`
}

// Active reports whether the session has not been ended yet.
func (s *ChatSession) Active() bool {
	return s.EndedAt == nil
}

// ChatMessage is one relayed message logged against a session.
type ChatMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"index;type:char(36);not null"`
	FromAdmin bool   `gorm:"not null"`
	Summary   string `gorm:"type:text"`
	CreatedAt time.Time
}
