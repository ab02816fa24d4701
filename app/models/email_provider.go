package models

import "time"

const (
	EmailProviderTypeAPI   = "api"
	EmailProviderTypeOAuth = "oauth"
	EmailProviderTypeSMTP  = "smtp"
)

// APIEmailProviders are providers configured with an API key.
var APIEmailProviders = []string{"sendgrid", "mailchimp", "sendinblue", "postmark"}

// SMTPEmailProviders are personal mailbox providers configured with an app
// password; they require a from address.
var SMTPEmailProviders = []string{"gmail", "outlook", "yahoo", "icloud"}

// EmailProvider holds a user's outbound email configuration for one provider.
// Rows are soft-deleted by clearing IsActive rather than removed.
type EmailProvider struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:ux_email_providers_user_name,unique" json:"user_id"`
	ProviderName string    `gorm:"type:varchar(50);not null;index:ux_email_providers_user_name,unique" json:"provider_name"`
	APIKey       string    `gorm:"type:text" json:"-"`
	FromEmail    string    `gorm:"type:varchar(200);default:''" json:"from_email"`
	FromName     string    `gorm:"type:varchar(200);default:''" json:"from_name"`
	ProviderType string    `gorm:"type:varchar(20);default:'api'" json:"provider_type"`
	SMTPHost     string    `gorm:"type:varchar(200);default:''" json:"smtp_host,omitempty"`
	SMTPPort     int       `gorm:"default:0" json:"smtp_port,omitempty"`
	SMTPSecure   bool      `gorm:"default:false" json:"smtp_secure,omitempty"`
	SMTPUsername string    `gorm:"type:varchar(200);default:''" json:"smtp_username,omitempty"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidEmailProvider reports whether the name is a supported provider.
func ValidEmailProvider(name string) bool {
	for _, p := range APIEmailProviders {
		if p == name {
			return true
		}
	}
	for _, p := range SMTPEmailProviders {
		if p == name {
			return true
		}
	}
	return false
}

// IsSMTPProvider reports whether the name is a personal SMTP provider.
func IsSMTPProvider(name string) bool {
	for _, p := range SMTPEmailProviders {
		if p == name {
			return true
		}
	}
	return false
}
