package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	TouchLastLogin(id uint) error
}

// ConnectionRepository defines the interface for OAuth connection storage.
// Upsert is keyed by (user_id, provider); token fields arrive pre-encrypted.
type ConnectionRepository interface {
	Upsert(conn *models.OAuthConnection) error
	GetByUserAndProvider(userID uint, provider string) (*models.OAuthConnection, error)
	GetAnyConnectedByProvider(provider string) (*models.OAuthConnection, error)
	// AdoptByProvider reassigns a connection row to userID with a single
	// conditional update; returns the number of rows moved.
	AdoptByProvider(id uint, userID uint) (int64, error)
	UpdateTokens(id uint, accessTokenEnc, refreshTokenEnc string) error
	TouchLastSynced(id uint, at time.Time) error
	Disconnect(userID uint, provider string) error
	Delete(userID uint, provider string) error
}

// InvoiceRepository defines the interface for synced invoice storage. The
// lookup key deliberately ignores user_id; see the adoption policy on the
// Invoice model.
type InvoiceRepository interface {
	Create(invoice *models.Invoice) error
	GetByID(id uint) (*models.Invoice, error)
	GetByIDAndUser(id, userID uint) (*models.Invoice, error)
	GetByExternalID(externalID, source string) (*models.Invoice, error)
	UpdateMutable(id uint, status string, amount float64) error
	ReassignOwner(id, userID uint) error
	ListByUserAndSource(userID uint, source string) ([]models.Invoice, error)
	CountBySource(source string) (int64, error)
	AdoptAllBySource(source string, userID uint) (int64, error)
}

// ReminderRepository defines the interface for scheduled reminder storage
type ReminderRepository interface {
	Create(reminder *models.ScheduledReminder) error
	GetByIDAndUser(id, userID uint) (*models.ScheduledReminder, error)
	ListPendingByUser(userID uint) ([]models.ScheduledReminder, error)
	Update(reminder *models.ScheduledReminder) error
	Delete(id uint) error
}

// TemplateRepository defines the interface for email template storage
type TemplateRepository interface {
	Create(template *models.EmailTemplate) error
	GetByIDAndUser(id, userID uint) (*models.EmailTemplate, error)
	GetByUserAndName(userID uint, name string) (*models.EmailTemplate, error)
	ListByUser(userID uint) ([]models.EmailTemplate, error)
	Update(template *models.EmailTemplate) error
	Delete(id uint) error
}

// EmailProviderRepository defines the interface for outbound email provider
// configurations; deletion is a soft deactivate.
type EmailProviderRepository interface {
	Upsert(config *models.EmailProvider) error
	GetActive(userID uint, providerName string) (*models.EmailProvider, error)
	ListActive(userID uint) ([]models.EmailProvider, error)
	UpdateSender(userID uint, providerName, fromEmail string) error
	Deactivate(userID uint, providerName string) error
}

// Repositories holds all repository instances
type Repositories struct {
	User          UserRepository
	Connection    ConnectionRepository
	Invoice       InvoiceRepository
	Reminder      ReminderRepository
	Template      TemplateRepository
	EmailProvider EmailProviderRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Connection:    NewConnectionRepository(db),
		Invoice:       NewInvoiceRepository(db),
		Reminder:      NewReminderRepository(db),
		Template:      NewTemplateRepository(db),
		EmailProvider: NewEmailProviderRepository(db),
	}
}
