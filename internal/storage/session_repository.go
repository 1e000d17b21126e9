package storage

import (
	"errors"
	"time"

	"tg-relaybot/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository handles database operations for ChatSession
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// MigrateTable ensures the ChatSession and ChatMessage tables exist
func (r *SessionRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.ChatSession{}, &models.ChatMessage{})
}

// CreateDirect creates an active session bypassing the request flow.
// Fails with ErrConflict when the admin or the target user already holds
// an active session.
func (r *SessionRepository) CreateDirect(adminID, targetUserID int64) (string, error) {
	session := &models.ChatSession{
		ID:           uuid.NewString(),
		AdminID:      adminID,
		TargetUserID: targetUserID,
		ActiveAdmin:  &adminID,
		ActiveUser:   &targetUserID,
	}
	if err := r.db.Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrConflict
		}
		return "", err
	}
	return session.ID, nil
}

// ActiveForAdmin returns the admin's active session, or ErrNotFound.
func (r *SessionRepository) ActiveForAdmin(adminID int64) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("active_admin = ?", adminID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ActiveForUser returns the session in which the user is the target, or ErrNotFound.
func (r *SessionRepository) ActiveForUser(userID int64) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("active_user = ?", userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// End marks the admin's active session as ended and returns the number of
// sessions modified. Zero means there was no active session to end.
func (r *SessionRepository) End(adminID int64) (int64, error) {
	now := time.Now()
	result := r.db.Model(&models.ChatSession{}).
		Where("active_admin = ?", adminID).
		Updates(map[string]interface{}{
			"active_admin": nil,
			"active_user":  nil,
			"ended_at":     now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

// AppendMessage logs one relayed message against a session.
func (r *SessionRepository) AppendMessage(sessionID string, fromAdmin bool, summary string) error {
	return r.db.Create(&models.ChatMessage{
		SessionID: sessionID,
		FromAdmin: fromAdmin,
		Summary:   summary,
	}).Error
}

// ListActive returns all currently active sessions, oldest first.
func (r *SessionRepository) ListActive() ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := r.db.Where("ended_at IS NULL").Order("created_at").Find(&sessions).Error
	return sessions, err
}
