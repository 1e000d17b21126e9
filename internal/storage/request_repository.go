package storage

import (
	"errors"
	"time"

	"tg-relaybot/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestRepository handles database operations for ChatRequest
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// MigrateTable ensures the ChatRequest table exists
func (r *RequestRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.ChatRequest{})
}

// CreatePending inserts a new pending request for the user. The unique
// index on pending_user makes this fail with ErrConflict when the user
// already has a pending request, regardless of which runtime races us.
func (r *RequestRepository) CreatePending(userID int64) (string, error) {
	request := &models.ChatRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Status:      models.RequestPending,
		PendingUser: &userID,
	}
	if err := r.db.Create(request).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrConflict
		}
		return "", err
	}
	return request.ID, nil
}

// GetPendingByUser returns the user's pending request, or ErrNotFound.
func (r *RequestRepository) GetPendingByUser(userID int64) (*models.ChatRequest, error) {
	var request models.ChatRequest
	err := r.db.Where("pending_user = ?", userID).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetByID returns the request with the given id, or ErrNotFound.
func (r *RequestRepository) GetByID(id string) (*models.ChatRequest, error) {
	var request models.ChatRequest
	err := r.db.Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Accept transitions the request to accepted and creates the session in
// one transaction. The status guard on the UPDATE and the unique active
// columns on the session INSERT mean only one of two racing accepts can
// succeed; the loser gets ErrConflict.
func (r *RequestRepository) Accept(id string, adminID int64) (string, error) {
	var sessionID string
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var request models.ChatRequest
		if err := tx.Where("id = ?", id).First(&request).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		result := tx.Model(&models.ChatRequest{}).
			Where("id = ? AND status = ?", id, models.RequestPending).
			Updates(map[string]interface{}{
				"status":       models.RequestAccepted,
				"pending_user": nil,
				"updated_at":   time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		session := &models.ChatSession{
			ID:           uuid.NewString(),
			AdminID:      adminID,
			TargetUserID: request.UserID,
			ActiveAdmin:  &adminID,
			ActiveUser:   &request.UserID,
		}
		if err := tx.Create(session).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}
		sessionID = session.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// Deny transitions the request to denied. Returns ErrConflict when the
// request is no longer pending.
func (r *RequestRepository) Deny(id string) error {
	result := r.db.Model(&models.ChatRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(map[string]interface{}{
			"status":       models.RequestDenied,
			"pending_user": nil,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
