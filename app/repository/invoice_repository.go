package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(invoice *models.Invoice) error {
	return r.db.Create(invoice).Error
}

func (r *invoiceRepository) GetByID(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.First(&invoice, id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) GetByIDAndUser(id, userID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetByExternalID looks up by the sync key, which ignores user_id.
func (r *invoiceRepository) GetByExternalID(externalID, source string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.Where("external_id = ? AND integration_source = ?", externalID, source).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdateMutable writes the fields a re-sync may change
func (r *invoiceRepository) UpdateMutable(id uint, status string, amount float64) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"amount":     amount,
		"updated_at": time.Now(),
	}).Error
}

func (r *invoiceRepository) ReassignOwner(id, userID uint) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]any{
		"user_id":    userID,
		"updated_at": time.Now(),
	}).Error
}

func (r *invoiceRepository) ListByUserAndSource(userID uint, source string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("user_id = ? AND integration_source = ?", userID, source).
		Order("created_at DESC").Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) CountBySource(source string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).Where("integration_source = ?", source).Count(&count).Error
	return count, err
}

// AdoptAllBySource reassigns every invoice from a source to userID. Used on
// reads that find no rows for the requesting user but orphans in the table.
func (r *invoiceRepository) AdoptAllBySource(source string, userID uint) (int64, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("integration_source = ? AND user_id <> ?", source, userID).
		Updates(map[string]any{"user_id": userID, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}
