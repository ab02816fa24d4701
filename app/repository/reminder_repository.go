package repository

import (
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
)

// reminderRepository implements the ReminderRepository interface
type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository creates a new scheduled reminder repository instance
func NewReminderRepository(db *gorm.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

func (r *reminderRepository) Create(reminder *models.ScheduledReminder) error {
	return r.db.Create(reminder).Error
}

// GetByIDAndUser scopes the lookup to the owner so foreign reminders are
// indistinguishable from absent ones.
func (r *reminderRepository) GetByIDAndUser(id, userID uint) (*models.ScheduledReminder, error) {
	var reminder models.ScheduledReminder
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&reminder).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (r *reminderRepository) ListPendingByUser(userID uint) ([]models.ScheduledReminder, error) {
	var reminders []models.ScheduledReminder
	err := r.db.Where("user_id = ? AND is_sent = ?", userID, false).
		Order("scheduled_date ASC").Find(&reminders).Error
	return reminders, err
}

func (r *reminderRepository) Update(reminder *models.ScheduledReminder) error {
	return r.db.Save(reminder).Error
}

func (r *reminderRepository) Delete(id uint) error {
	return r.db.Delete(&models.ScheduledReminder{}, id).Error
}
