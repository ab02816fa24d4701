package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/mailer"
	"github.com/nwittke/billfox/internal/pkg/reminder"
)

// HandleCreateReminders materializes reminders for one invoice.
func HandleCreateReminders(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		InvoiceID       uint                    `json:"invoiceId"`
		Schedules       []reminder.ScheduleSpec `json:"schedules"`
		RecipientEmails []string                `json:"recipientEmails"`
		BulkGroupID     string                  `json:"bulkGroupId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Missing required fields")
	}
	if body.InvoiceID == 0 || len(body.Schedules) == 0 || len(body.RecipientEmails) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "Missing required fields")
	}

	created, err := scheduler.CreateReminders(c.Context(), userID, body.InvoiceID, body.Schedules, body.RecipientEmails, body.BulkGroupID)
	if err != nil {
		var valErr *reminder.ValidationError
		switch {
		case errors.Is(err, reminder.ErrInvoiceNotFound):
			return jsonError(c, fiber.StatusNotFound, "Invoice not found")
		case errors.As(err, &valErr):
			return jsonError(c, fiber.StatusBadRequest, valErr.Error())
		default:
			return jsonError(c, fiber.StatusInternalServerError, "Failed to create reminders")
		}
	}

	summaries := make([]fiber.Map, 0, len(created))
	for _, r := range created {
		summaries = append(summaries, fiber.Map{
			"scheduleType":  r.ScheduleType,
			"daysOverdue":   r.DaysOverdue,
			"scheduledDate": r.ScheduledDate.Format("2006-01-02"),
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"created":   len(created),
		"reminders": summaries,
	})
}

// HandleListReminders returns the user's pending reminders joined with their
// invoice details.
func HandleListReminders(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	reminders, err := scheduler.ListPending(c.Context(), userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch reminders")
	}

	invoices := repository.GetGlobalFactory().GetInvoiceRepository()
	formatted := make([]fiber.Map, 0, len(reminders))
	for _, r := range reminders {
		entry := fiber.Map{
			"id":              r.ID,
			"invoiceId":       r.InvoiceID,
			"daysOverdue":     r.DaysOverdue,
			"scheduledDate":   r.ScheduledDate.Format("2006-01-02"),
			"recipientEmails": r.Recipients(),
			"isSent":          r.IsSent,
			"sentAt":          r.SentAt,
			"createdAt":       r.CreatedAt,
			"scheduleType":    r.ScheduleType,
			"bulkGroupId":     r.BulkGroupID,
		}
		if snapshot, ok := r.Snapshot(); ok {
			entry["templateName"] = snapshot.Name
		}
		if invoice, err := invoices.GetByIDAndUser(r.InvoiceID, userID); err == nil {
			entry["invoiceNumber"] = invoice.InvoiceNumber
			entry["clientName"] = invoice.ClientName
			entry["clientEmail"] = invoice.ClientEmail
			entry["amount"] = invoice.Amount
			entry["clientId"] = invoice.ExternalID
		}
		formatted = append(formatted, entry)
	}
	return c.JSON(fiber.Map{"reminders": formatted})
}

// HandleUpdateReminder partially patches an owned reminder.
func HandleUpdateReminder(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid reminder id")
	}

	var body struct {
		ScheduledDate   string   `json:"scheduledDate"`
		RecipientEmails []string `json:"recipientEmails"`
		DaysOverdue     *int     `json:"daysOverdue"`
	}
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	patch := reminder.UpdatePatch{
		RecipientEmails: body.RecipientEmails,
		DaysOverdue:     body.DaysOverdue,
	}
	if body.ScheduledDate != "" {
		parsed, perr := time.Parse("2006-01-02", body.ScheduledDate)
		if perr != nil {
			return jsonError(c, fiber.StatusBadRequest, "Invalid scheduled date")
		}
		patch.ScheduledDate = &parsed
	}

	if _, err := scheduler.UpdateReminder(c.Context(), userID, uint(id), patch); err != nil {
		var valErr *reminder.ValidationError
		switch {
		case errors.Is(err, reminder.ErrNotFound):
			return jsonError(c, fiber.StatusNotFound, "Reminder not found")
		case errors.As(err, &valErr):
			return jsonError(c, fiber.StatusBadRequest, valErr.Error())
		default:
			return jsonError(c, fiber.StatusInternalServerError, "Failed to update reminder")
		}
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleDeleteReminder hard-deletes an owned reminder.
func HandleDeleteReminder(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid reminder id")
	}

	if err := scheduler.DeleteReminder(c.Context(), userID, uint(id)); err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Reminder not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to delete reminder")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleReminderTestSend sends a template's content to the given recipients
// through the user's configured default provider.
func HandleReminderTestSend(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		RecipientEmails []string `json:"recipientEmails"`
		TemplateID      uint     `json:"templateId"`
		InvoiceID       uint     `json:"invoiceId"`
		Provider        string   `json:"provider"`
	}
	if err := c.BodyParser(&body); err != nil || len(body.RecipientEmails) == 0 || body.TemplateID == 0 || body.InvoiceID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "Missing required fields")
	}

	factory := repository.GetGlobalFactory()
	template, err := factory.GetTemplateRepository().GetByIDAndUser(body.TemplateID, userID)
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "Template not found")
	}

	cfg, err := factory.GetEmailProviderRepository().GetActive(userID, body.Provider)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, body.Provider+" is not configured. Please add your API key in Settings > Email Providers.")
	}

	results, err := mailer.Send(c.Context(), cfg, body.RecipientEmails, template.Subject, template.Body, "")
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	fiberlog.Infof("test send for user %d via %s: %d recipients", userID, cfg.ProviderName, len(results))

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Test email sent successfully",
		"recipients": body.RecipientEmails,
		"results":    results,
	})
}
