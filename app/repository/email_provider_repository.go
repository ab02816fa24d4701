package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nwittke/billfox/app/models"
)

// emailProviderRepository implements the EmailProviderRepository interface
type emailProviderRepository struct {
	db *gorm.DB
}

// NewEmailProviderRepository creates a new email provider repository instance
func NewEmailProviderRepository(db *gorm.DB) EmailProviderRepository {
	return &emailProviderRepository{db: db}
}

// Upsert inserts or updates the configuration for (user_id, provider_name).
// A previously deactivated row is reactivated with the new credentials.
func (r *emailProviderRepository) Upsert(config *models.EmailProvider) error {
	config.IsActive = true
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"api_key", "from_email", "from_name", "provider_type", "smtp_host",
			"smtp_port", "smtp_secure", "smtp_username", "is_active", "updated_at",
		}),
	}).Create(config).Error
	if err != nil {
		return err
	}
	return r.db.Where("user_id = ? AND provider_name = ?", config.UserID, config.ProviderName).
		First(config).Error
}

func (r *emailProviderRepository) GetActive(userID uint, providerName string) (*models.EmailProvider, error) {
	var config models.EmailProvider
	err := r.db.Where("user_id = ? AND provider_name = ? AND is_active = ?", userID, providerName, true).
		First(&config).Error
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (r *emailProviderRepository) ListActive(userID uint) ([]models.EmailProvider, error) {
	var configs []models.EmailProvider
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("provider_name ASC").Find(&configs).Error
	return configs, err
}

func (r *emailProviderRepository) UpdateSender(userID uint, providerName, fromEmail string) error {
	return r.db.Model(&models.EmailProvider{}).
		Where("user_id = ? AND provider_name = ? AND is_active = ?", userID, providerName, true).
		Update("from_email", fromEmail).Error
}

// Deactivate soft deletes the configuration so stored credentials survive a
// reconnect without being re-entered server side.
func (r *emailProviderRepository) Deactivate(userID uint, providerName string) error {
	return r.db.Model(&models.EmailProvider{}).
		Where("user_id = ? AND provider_name = ?", userID, providerName).
		Update("is_active", false).Error
}
