package reminder

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
)

// ErrNotFound is returned for reminders that are absent OR owned by another
// user. The two cases are deliberately indistinguishable so that probing ids
// leaks nothing.
var ErrNotFound = errors.New("reminder not found")

// ErrInvoiceNotFound is returned when the referenced invoice does not belong
// to the requesting user.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ValidationError carries a field-specific message for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ScheduleSpec describes one reminder to materialize against an invoice.
// Disabled specs and specs without a template are skipped silently.
type ScheduleSpec struct {
	Enabled     bool                     `json:"enabled"`
	DaysOverdue int                      `json:"day"`
	IsCustom    bool                     `json:"isCustom"`
	Template    *models.TemplateSnapshot `json:"template"`
}

// UpdatePatch is a partial update; nil fields keep their stored values.
type UpdatePatch struct {
	ScheduledDate   *time.Time `json:"scheduled_date"`
	RecipientEmails []string   `json:"recipient_emails"`
	DaysOverdue     *int       `json:"days_overdue"`
}

// Scheduler materializes concrete reminder send dates from invoice due dates
// and schedule specs. It owns no dispatch; rows are consumed by an external
// sender.
type Scheduler struct {
	reminders repository.ReminderRepository
	invoices  repository.InvoiceRepository
}

// NewScheduler creates a scheduler over the given repositories.
func NewScheduler(reminders repository.ReminderRepository, invoices repository.InvoiceRepository) *Scheduler {
	return &Scheduler{
		reminders: reminders,
		invoices:  invoices,
	}
}

// CreateReminders creates one reminder per enabled spec with a template.
// scheduledDate = invoice due date + daysOverdue calendar days, computed once
// at creation and never recomputed. The template is frozen onto each row as
// a snapshot. A non-empty bulkGroupID marks the rows as part of one
// multi-invoice action.
func (s *Scheduler) CreateReminders(ctx context.Context, userID, invoiceID uint, specs []ScheduleSpec, recipients []string, bulkGroupID string) ([]models.ScheduledReminder, error) {
	if len(recipients) == 0 {
		return nil, &ValidationError{Field: "recipient_emails", Message: "at least one recipient is required"}
	}
	for _, email := range recipients {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, &ValidationError{Field: "recipient_emails", Message: "invalid email address: " + email}
		}
	}

	invoice, err := s.invoices.GetByIDAndUser(invoiceID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	created := make([]models.ScheduledReminder, 0, len(specs))
	for _, spec := range specs {
		if !spec.Enabled || spec.Template == nil {
			continue
		}

		r := models.ScheduledReminder{
			UserID:        userID,
			InvoiceID:     invoice.ID,
			ScheduleType:  scheduleType(spec, bulkGroupID),
			DaysOverdue:   spec.DaysOverdue,
			ScheduledDate: invoice.DueDate.AddDate(0, 0, spec.DaysOverdue),
			BulkGroupID:   bulkGroupID,
		}
		if err := r.SetRecipients(recipients); err != nil {
			return nil, err
		}
		if err := r.SetSnapshot(*spec.Template); err != nil {
			return nil, err
		}
		if err := s.reminders.Create(&r); err != nil {
			return nil, err
		}
		created = append(created, r)
	}
	return created, nil
}

// ListPending returns the user's unsent reminders ordered by scheduled date.
func (s *Scheduler) ListPending(ctx context.Context, userID uint) ([]models.ScheduledReminder, error) {
	return s.reminders.ListPendingByUser(userID)
}

// UpdateReminder applies a partial patch to an owned reminder. Changing
// DaysOverdue alone does not recompute the scheduled date; callers that want
// both set both.
func (s *Scheduler) UpdateReminder(ctx context.Context, userID, id uint, patch UpdatePatch) (*models.ScheduledReminder, error) {
	r, err := s.reminders.GetByIDAndUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if patch.ScheduledDate != nil {
		r.ScheduledDate = *patch.ScheduledDate
	}
	if patch.DaysOverdue != nil {
		r.DaysOverdue = *patch.DaysOverdue
	}
	if patch.RecipientEmails != nil {
		for _, email := range patch.RecipientEmails {
			if _, err := mail.ParseAddress(email); err != nil {
				return nil, &ValidationError{Field: "recipient_emails", Message: "invalid email address: " + email}
			}
		}
		if err := r.SetRecipients(patch.RecipientEmails); err != nil {
			return nil, err
		}
	}

	if err := s.reminders.Update(r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteReminder hard-deletes an owned reminder.
func (s *Scheduler) DeleteReminder(ctx context.Context, userID, id uint) error {
	r, err := s.reminders.GetByIDAndUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.reminders.Delete(r.ID)
}

func scheduleType(spec ScheduleSpec, bulkGroupID string) string {
	if bulkGroupID != "" {
		return models.ScheduleTypeBulk
	}
	if spec.IsCustom {
		return models.ScheduleTypeCustom
	}
	return models.ScheduleTypeStandard
}
