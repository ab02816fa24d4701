package reminder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
)

type schedulerFixture struct {
	scheduler *Scheduler
	reminders repository.ReminderRepository
	invoices  repository.InvoiceRepository
	templates repository.TemplateRepository
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Invoice{}, &models.ScheduledReminder{}, &models.EmailTemplate{}))

	reminders := repository.NewReminderRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	return &schedulerFixture{
		scheduler: NewScheduler(reminders, invoices),
		reminders: reminders,
		invoices:  invoices,
		templates: repository.NewTemplateRepository(db),
	}
}

func (f *schedulerFixture) seedInvoice(t *testing.T, userID uint, dueDate string) *models.Invoice {
	t.Helper()
	due, err := time.Parse("2006-01-02", dueDate)
	require.NoError(t, err)
	inv := &models.Invoice{
		UserID:            userID,
		ExternalID:        "INV-" + dueDate,
		IntegrationSource: models.ProviderPayPal,
		Amount:            100,
		DueDate:           due,
		Status:            models.InvoiceStatusPending,
	}
	require.NoError(t, f.invoices.Create(inv))
	return inv
}

func snapshotOf(name string) *models.TemplateSnapshot {
	return &models.TemplateSnapshot{
		TemplateID: 1,
		Name:       name,
		Subject:    "Payment overdue",
		Body:       "Please pay invoice {{invoiceNumber}}.",
	}
}

// scheduledDate = due date + daysOverdue calendar days, computed once at
// creation.
func TestCreateRemindersDateArithmetic(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")

	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, Template: snapshotOf("First nudge")},
		{Enabled: true, DaysOverdue: 30, Template: snapshotOf("Final notice")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, "2025-01-17", created[0].ScheduledDate.Format("2006-01-02"))
	assert.Equal(t, "2025-02-09", created[1].ScheduledDate.Format("2006-01-02"))
	assert.Equal(t, models.ScheduleTypeStandard, created[0].ScheduleType)
	assert.Equal(t, []string{"client@example.com"}, created[0].Recipients())
}

// Month boundaries roll over as calendar days.
func TestCreateRemindersMonthRollover(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-31")

	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 1, Template: snapshotOf("Nudge")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "2025-02-01", created[0].ScheduledDate.Format("2006-01-02"))
}

func TestCreateRemindersSkipsDisabledAndTemplateless(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")

	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: false, DaysOverdue: 7, Template: snapshotOf("Disabled")},
		{Enabled: true, DaysOverdue: 14},
		{Enabled: true, DaysOverdue: 30, Template: snapshotOf("Kept")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 30, created[0].DaysOverdue)
}

func TestCreateRemindersScheduleTypes(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")

	bulk, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, IsCustom: true, Template: snapshotOf("Bulk")},
	}, []string{"client@example.com"}, "group-1")
	require.NoError(t, err)
	// a bulk group id wins over the custom flag
	assert.Equal(t, models.ScheduleTypeBulk, bulk[0].ScheduleType)
	assert.Equal(t, "group-1", bulk[0].BulkGroupID)

	custom, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, IsCustom: true, Template: snapshotOf("Custom")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleTypeCustom, custom[0].ScheduleType)
}

func TestCreateRemindersValidation(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")
	specs := []ScheduleSpec{{Enabled: true, DaysOverdue: 7, Template: snapshotOf("T")}}

	_, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, specs, nil, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "recipient_emails", verr.Field)

	_, err = f.scheduler.CreateReminders(context.Background(), 1, inv.ID, specs, []string{"not an email"}, "")
	assert.ErrorAs(t, err, &verr)
}

// An invoice owned by another user is reported as not found.
func TestCreateRemindersForeignInvoice(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 99, "2025-01-10")

	_, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, Template: snapshotOf("T")},
	}, []string{"client@example.com"}, "")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

// The snapshot is frozen at creation; later template edits never reach it.
func TestReminderSnapshotImmutable(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")

	tmpl := &models.EmailTemplate{UserID: 1, Name: "Friendly", Subject: "Before", Body: "Original body"}
	require.NoError(t, f.templates.Create(tmpl))

	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, Template: &models.TemplateSnapshot{
			TemplateID: tmpl.ID, Name: tmpl.Name, Subject: tmpl.Subject, Body: tmpl.Body,
		}},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)

	tmpl.Subject = "After"
	tmpl.Body = "Rewritten body"
	require.NoError(t, f.templates.Update(tmpl))

	stored, err := f.reminders.GetByIDAndUser(created[0].ID, 1)
	require.NoError(t, err)
	snap, ok := stored.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "Before", snap.Subject)
	assert.Equal(t, "Original body", snap.Body)
}

func TestUpdateReminderPartialPatch(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")
	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, Template: snapshotOf("T")},
	}, []string{"old@example.com"}, "")
	require.NoError(t, err)

	newDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	updated, err := f.scheduler.UpdateReminder(context.Background(), 1, created[0].ID, UpdatePatch{
		ScheduledDate: &newDate,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", updated.ScheduledDate.Format("2006-01-02"))
	// untouched fields keep their stored values
	assert.Equal(t, []string{"old@example.com"}, updated.Recipients())
	assert.Equal(t, 7, updated.DaysOverdue)

	_, err = f.scheduler.UpdateReminder(context.Background(), 1, created[0].ID, UpdatePatch{
		RecipientEmails: []string{"bogus"},
	})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

// Foreign reminders are indistinguishable from absent ones, and a rejected
// update leaves the row unchanged.
func TestUpdateReminderOwnership(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")
	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, Template: snapshotOf("T")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)

	newDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.scheduler.UpdateReminder(context.Background(), 2, created[0].ID, UpdatePatch{ScheduledDate: &newDate})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.scheduler.UpdateReminder(context.Background(), 2, 424242, UpdatePatch{ScheduledDate: &newDate})
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.reminders.GetByIDAndUser(created[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-17", stored.ScheduledDate.Format("2006-01-02"))
}

func TestDeleteReminder(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")
	created, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 7, Template: snapshotOf("T")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.scheduler.DeleteReminder(context.Background(), 2, created[0].ID), ErrNotFound)

	require.NoError(t, f.scheduler.DeleteReminder(context.Background(), 1, created[0].ID))
	_, err = f.reminders.GetByIDAndUser(created[0].ID, 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListPendingOrder(t *testing.T) {
	f := newSchedulerFixture(t)
	inv := f.seedInvoice(t, 1, "2025-01-10")

	_, err := f.scheduler.CreateReminders(context.Background(), 1, inv.ID, []ScheduleSpec{
		{Enabled: true, DaysOverdue: 30, Template: snapshotOf("Late")},
		{Enabled: true, DaysOverdue: 7, Template: snapshotOf("Early")},
	}, []string{"client@example.com"}, "")
	require.NoError(t, err)

	pending, err := f.scheduler.ListPending(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.True(t, !pending[0].ScheduledDate.After(pending[1].ScheduledDate))
}
