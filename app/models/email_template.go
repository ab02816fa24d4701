package models

import (
	"regexp"
	"time"
)

var templateNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]{1,100}$`)

// EmailTemplate is a user-owned reminder template. Reminders store a frozen
// snapshot of the template at scheduling time, so edits here never alter an
// already scheduled reminder.
type EmailTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:ux_email_templates_user_name,unique" json:"user_id"`
	Name      string    `gorm:"type:varchar(100);not null;index:ux_email_templates_user_name,unique" json:"name"`
	Tone      string    `gorm:"type:varchar(50);default:'blank'" json:"type"`
	Subject   string    `gorm:"type:varchar(255);default:''" json:"subject"`
	Body      string    `gorm:"type:text" json:"body"`
	IsCustom  bool      `gorm:"default:true" json:"is_custom"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidTemplateName reports whether a template name matches the allowed
// character set (letters, numbers, spaces, hyphens, underscores; 1-100 chars).
func ValidTemplateName(name string) bool {
	return templateNamePattern.MatchString(name)
}
