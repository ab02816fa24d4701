package repository

import (
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
)

// templateRepository implements the TemplateRepository interface
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new email template repository instance
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(template *models.EmailTemplate) error {
	return r.db.Create(template).Error
}

func (r *templateRepository) GetByIDAndUser(id, userID uint) (*models.EmailTemplate, error) {
	var template models.EmailTemplate
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) GetByUserAndName(userID uint, name string) (*models.EmailTemplate, error) {
	var template models.EmailTemplate
	err := r.db.Where("user_id = ? AND name = ?", userID, name).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) ListByUser(userID uint) ([]models.EmailTemplate, error) {
	var templates []models.EmailTemplate
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&templates).Error
	return templates, err
}

func (r *templateRepository) Update(template *models.EmailTemplate) error {
	return r.db.Save(template).Error
}

func (r *templateRepository) Delete(id uint) error {
	return r.db.Delete(&models.EmailTemplate{}, id).Error
}
