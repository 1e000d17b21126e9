package storage

import (
	"errors"
	"time"

	"tg-relaybot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles database operations for UserRecord and PremiumPlan
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// MigrateTable ensures the UserRecord and PremiumPlan tables exist
func (r *UserRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.UserRecord{}, &models.PremiumPlan{})
}

// Upsert registers the user or refreshes their name and username.
func (r *UserRepository) Upsert(userID int64, name, username string) error {
	record := &models.UserRecord{
		ID:              userID,
		Name:            name,
		Username:        username,
		InteractionMode: models.ModeIdle,
		JoinedAt:        time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "username", "updated_at"}),
	}).Create(record).Error
}

// GetByID returns the user record, or ErrNotFound.
func (r *UserRepository) GetByID(userID int64) (*models.UserRecord, error) {
	var record models.UserRecord
	err := r.db.Where("id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IsRegistered reports whether a user record exists.
func (r *UserRepository) IsRegistered(userID int64) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserRecord{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

// ListAll returns every registered user, newest first.
func (r *UserRepository) ListAll() ([]models.UserRecord, error) {
	var records []models.UserRecord
	err := r.db.Order("joined_at DESC").Find(&records).Error
	return records, err
}

// Count returns the number of registered users.
func (r *UserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.UserRecord{}).Count(&count).Error
	return count, err
}

// Delete removes a user record and their plan. Used by the broadcast
// cleanup when an account turns out to be deleted.
func (r *UserRepository) Delete(userID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.PremiumPlan{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", userID).Delete(&models.UserRecord{}).Error
	})
}

// SetInteractionMode updates the user's interaction mode.
func (r *UserRepository) SetInteractionMode(userID int64, mode string) error {
	return r.db.Model(&models.UserRecord{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"interaction_mode": mode, "updated_at": time.Now()}).Error
}

// GetPlan returns the user's premium plan, or ErrNotFound.
func (r *UserRepository) GetPlan(userID int64) (*models.PremiumPlan, error) {
	var plan models.PremiumPlan
	err := r.db.Where("user_id = ?", userID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns all premium plans in one query so dashboard renders
// do not issue one lookup per user.
func (r *UserRepository) ListPlans() ([]models.PremiumPlan, error) {
	var plans []models.PremiumPlan
	err := r.db.Find(&plans).Error
	return plans, err
}
