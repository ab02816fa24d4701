package models

import "time"

const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
)

// Invoice is synced from an external invoicing source. The uniqueness key is
// (external_id, integration_source) WITHOUT user_id: the deployment assumes a
// single operating user, and an invoice found under another user is adopted
// by whoever syncs it.
type Invoice struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	ExternalID        string     `gorm:"type:varchar(191);not null;index:ux_invoices_external_source,unique" json:"external_id"`
	IntegrationSource string     `gorm:"type:varchar(20);not null;index:ux_invoices_external_source,unique" json:"integration_source"`
	InvoiceNumber     string     `gorm:"type:varchar(100)" json:"invoice_number"`
	ClientName        string     `gorm:"type:varchar(200)" json:"client_name"`
	ClientEmail       string     `gorm:"type:varchar(200);default:''" json:"client_email"`
	Amount            float64    `gorm:"type:decimal(12,2)" json:"amount"`
	DueDate           time.Time  `gorm:"type:date" json:"due_date"`
	Status            string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	PaymentDate       *time.Time `gorm:"type:date;default:null" json:"payment_date,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
