package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/mailer"
)

const templateNameRuleMessage = "Template name can only contain letters, numbers, spaces, hyphens, and underscores (1-100 characters)"

// HandleListTemplates returns all of the user's templates, newest first.
func HandleListTemplates(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	templates, err := repository.GetGlobalFactory().GetTemplateRepository().ListByUser(userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch templates")
	}
	return c.JSON(fiber.Map{"templates": templates})
}

// HandleCreateTemplate creates a template; names are unique per user.
func HandleCreateTemplate(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Subject  string `json:"subject"`
		BodyText string `json:"bodyText"`
	}
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		return jsonError(c, fiber.StatusBadRequest, "Template name is required")
	}
	if !models.ValidTemplateName(name) {
		return jsonError(c, fiber.StatusBadRequest, templateNameRuleMessage)
	}

	repo := repository.GetGlobalFactory().GetTemplateRepository()
	if _, err := repo.GetByUserAndName(userID, name); err == nil {
		return jsonError(c, fiber.StatusConflict, "A template with this name already exists")
	}

	tone := body.Type
	if tone == "" {
		tone = "blank"
	}
	template := &models.EmailTemplate{
		UserID:   userID,
		Name:     name,
		Tone:     tone,
		Subject:  body.Subject,
		Body:     body.BodyText,
		IsCustom: true,
	}
	if err := repo.Create(template); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to create template")
	}
	return c.JSON(fiber.Map{"success": true, "template": template})
}

// HandleUpdateTemplate partially patches an owned template.
func HandleUpdateTemplate(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid template id")
	}

	var body struct {
		Name     *string `json:"name"`
		Type     *string `json:"type"`
		Subject  *string `json:"subject"`
		BodyText *string `json:"bodyText"`
	}
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	repo := repository.GetGlobalFactory().GetTemplateRepository()

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			return jsonError(c, fiber.StatusBadRequest, "Template name is required")
		}
		if !models.ValidTemplateName(name) {
			return jsonError(c, fiber.StatusBadRequest, templateNameRuleMessage)
		}
		if existing, err := repo.GetByUserAndName(userID, name); err == nil && existing.ID != uint(id) {
			return jsonError(c, fiber.StatusConflict, "A template with this name already exists")
		}
		*body.Name = name
	}

	template, err := repo.GetByIDAndUser(uint(id), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Template not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load template")
	}

	if body.Name != nil {
		template.Name = *body.Name
	}
	if body.Type != nil {
		template.Tone = *body.Type
	}
	if body.Subject != nil {
		template.Subject = *body.Subject
	}
	if body.BodyText != nil {
		template.Body = *body.BodyText
	}
	if err := repo.Update(template); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to update template")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleDeleteTemplate deletes an owned template. Scheduled reminders keep
// their frozen snapshot and are unaffected.
func HandleDeleteTemplate(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid template id")
	}

	repo := repository.GetGlobalFactory().GetTemplateRepository()
	template, err := repo.GetByIDAndUser(uint(id), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Template not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load template")
	}
	if err := repo.Delete(template.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to delete template")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleTemplateTestSend delivers ad-hoc content through a configured
// provider so the user can preview real sends.
func HandleTemplateTestSend(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		Provider string   `json:"provider"`
		Emails   []string `json:"emails"`
		Subject  string   `json:"subject"`
		Body     string   `json:"body"`
		HTMLBody string   `json:"htmlBody"`
	}
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(body.Emails) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "At least one recipient email is required")
	}
	if body.Subject == "" || body.Body == "" {
		return jsonError(c, fiber.StatusBadRequest, "Subject and body are required")
	}

	cfg, err := repository.GetGlobalFactory().GetEmailProviderRepository().GetActive(userID, body.Provider)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, body.Provider+" is not configured. Please add your API key in Settings > Email Providers.")
	}

	results, err := mailer.Send(c.Context(), cfg, body.Emails, body.Subject, body.Body, body.HTMLBody)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "results": results})
}
