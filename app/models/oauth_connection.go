package models

import "time"

// OAuth provider constants used across connection-related models.
const (
	ProviderPayPal    = "paypal"
	ProviderMailchimp = "mailchimp"
	ProviderGmail     = "gmail"
)

// OAuthConnection stores a user's linked third-party credentials per provider.
// Token fields hold ciphertext produced by the token cipher; the model itself
// has no cryptographic responsibility.
type OAuthConnection struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index:ux_oauth_connections_user_provider,unique" json:"user_id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_oauth_connections_user_provider,unique" json:"provider"`
	AccessTokenEnc  string     `gorm:"type:text" json:"-"`
	RefreshTokenEnc string     `gorm:"type:text" json:"-"`
	AccountID       string     `gorm:"type:varchar(191);default:''" json:"account_id"`
	AccountEmail    string     `gorm:"type:varchar(200);default:''" json:"account_email"`
	AccountName     string     `gorm:"type:varchar(200);default:''" json:"account_name"`
	Datacenter      string     `gorm:"type:varchar(20);default:''" json:"dc,omitempty"`
	IsConnected     bool       `gorm:"default:true" json:"is_connected"`
	LastSyncedAt    *time.Time `gorm:"type:timestamp;default:null" json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SupportsRefresh reports whether the provider issues refresh tokens.
// Mailchimp access tokens do not expire under its OAuth flow.
func (c *OAuthConnection) SupportsRefresh() bool {
	return c.Provider != ProviderMailchimp
}
