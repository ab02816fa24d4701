package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetConnectionRepository returns the OAuth connection repository instance
func (f *Factory) GetConnectionRepository() ConnectionRepository {
	return f.GetRepositories().Connection
}

// GetInvoiceRepository returns the invoice repository instance
func (f *Factory) GetInvoiceRepository() InvoiceRepository {
	return f.GetRepositories().Invoice
}

// GetReminderRepository returns the scheduled reminder repository instance
func (f *Factory) GetReminderRepository() ReminderRepository {
	return f.GetRepositories().Reminder
}

// GetTemplateRepository returns the email template repository instance
func (f *Factory) GetTemplateRepository() TemplateRepository {
	return f.GetRepositories().Template
}

// GetEmailProviderRepository returns the email provider repository instance
func (f *Factory) GetEmailProviderRepository() EmailProviderRepository {
	return f.GetRepositories().EmailProvider
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("repository factory not initialized - call InitializeFactory first")
	}
	return globalFactory
}
