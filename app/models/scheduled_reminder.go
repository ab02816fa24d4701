package models

import (
	"encoding/json"
	"time"
)

const (
	ScheduleTypeStandard = "standard"
	ScheduleTypeCustom   = "custom"
	ScheduleTypeBulk     = "bulk"
)

// TemplateSnapshot is the frozen copy of an email template stored on a
// reminder at creation time, decoupled from the live template row.
type TemplateSnapshot struct {
	TemplateID uint   `json:"id"`
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// ScheduledReminder is a materialized send date for one invoice. The
// scheduled date is computed once at creation (due date + days overdue) and
// never recomputed if the invoice's due date later changes.
type ScheduledReminder struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	InvoiceID       uint       `gorm:"not null;index" json:"invoice_id"`
	ScheduleType    string     `gorm:"type:varchar(20);default:'standard'" json:"schedule_type"`
	DaysOverdue     int        `json:"days_overdue"`
	TemplateID      uint       `json:"template_id"`
	TemplateData    string     `gorm:"type:text" json:"-"`
	RecipientEmails string     `gorm:"type:text" json:"-"`
	ScheduledDate   time.Time  `gorm:"type:date" json:"scheduled_date"`
	BulkGroupID     string     `gorm:"type:varchar(36);default:null;index" json:"bulk_group_id,omitempty"`
	IsSent          bool       `gorm:"default:false" json:"is_sent"`
	SentAt          *time.Time `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetRecipients stores the ordered recipient list as JSON.
func (r *ScheduledReminder) SetRecipients(emails []string) error {
	b, err := json.Marshal(emails)
	if err != nil {
		return err
	}
	r.RecipientEmails = string(b)
	return nil
}

// Recipients decodes the stored recipient list.
func (r *ScheduledReminder) Recipients() []string {
	var emails []string
	if err := json.Unmarshal([]byte(r.RecipientEmails), &emails); err != nil {
		return nil
	}
	return emails
}

// SetSnapshot freezes the given template onto the reminder.
func (r *ScheduledReminder) SetSnapshot(s TemplateSnapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	r.TemplateID = s.TemplateID
	r.TemplateData = string(b)
	return nil
}

// Snapshot decodes the frozen template copy, if any.
func (r *ScheduledReminder) Snapshot() (TemplateSnapshot, bool) {
	var s TemplateSnapshot
	if r.TemplateData == "" {
		return s, false
	}
	if err := json.Unmarshal([]byte(r.TemplateData), &s); err != nil {
		return TemplateSnapshot{}, false
	}
	return s, true
}
