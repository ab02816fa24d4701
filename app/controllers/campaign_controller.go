package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/mailer"
)

type campaignRequest struct {
	Subject      string `json:"subject"`
	HTMLContent  string `json:"htmlContent"`
	TextContent  string `json:"textContent"`
	CampaignName string `json:"campaignName"`
	TemplateName string `json:"templateName"`
}

func parseCampaignRequest(c *fiber.Ctx) (*campaignRequest, error) {
	var body campaignRequest
	if err := c.BodyParser(&body); err != nil {
		return nil, jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Subject == "" {
		return nil, jsonError(c, fiber.StatusBadRequest, "Subject is required")
	}
	return &body, nil
}

func campaignResponse(c *fiber.Ctx, draft *mailer.Draft) error {
	return c.JSON(fiber.Map{
		"success":    true,
		"campaignId": draft.ID,
		"editUrl":    draft.EditURL,
		"message":    draft.Message,
	})
}

// HandleGmailCampaign stores the content as a Gmail draft.
func HandleGmailCampaign(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	body, err := parseCampaignRequest(c)
	if err != nil || body == nil {
		return err
	}

	conn, cerr := connectService.Status(c.Context(), userID, models.ProviderGmail)
	if cerr != nil || conn == nil {
		return jsonError(c, fiber.StatusBadRequest, "Gmail not connected")
	}

	draft, derr := mailer.CreateGmailDraft(c.Context(), connectService, conn, body.Subject, body.HTMLContent, body.TextContent)
	if derr != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to create draft")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"draftId": draft.ID,
		"editUrl": draft.EditURL,
		"message": draft.Message,
	})
}

// HandleBrevoCampaign creates an email campaign draft in Brevo.
func HandleBrevoCampaign(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	body, err := parseCampaignRequest(c)
	if err != nil || body == nil {
		return err
	}

	cfg, cerr := repository.GetGlobalFactory().GetEmailProviderRepository().GetActive(userID, "sendinblue")
	if cerr != nil {
		return jsonError(c, fiber.StatusBadRequest, "Brevo not configured")
	}

	draft, derr := mailer.CreateBrevoCampaign(c.Context(), cfg, body.CampaignName, body.Subject, body.HTMLContent, body.TextContent)
	if derr != nil {
		return jsonError(c, fiber.StatusInternalServerError, derr.Error())
	}
	return campaignResponse(c, draft)
}

// HandleSendGridCampaign creates a marketing single send draft in SendGrid.
func HandleSendGridCampaign(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	body, err := parseCampaignRequest(c)
	if err != nil || body == nil {
		return err
	}

	cfg, cerr := repository.GetGlobalFactory().GetEmailProviderRepository().GetActive(userID, "sendgrid")
	if cerr != nil {
		return jsonError(c, fiber.StatusBadRequest, "SendGrid not configured")
	}

	draft, derr := mailer.CreateSendGridSingleSend(c.Context(), cfg, body.CampaignName, body.Subject, body.HTMLContent, body.TextContent)
	if derr != nil {
		return jsonError(c, fiber.StatusInternalServerError, derr.Error())
	}
	return campaignResponse(c, draft)
}

// HandlePostmarkCampaign creates an email template in Postmark.
func HandlePostmarkCampaign(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	body, err := parseCampaignRequest(c)
	if err != nil || body == nil {
		return err
	}

	cfg, cerr := repository.GetGlobalFactory().GetEmailProviderRepository().GetActive(userID, "postmark")
	if cerr != nil {
		return jsonError(c, fiber.StatusBadRequest, "Postmark not configured")
	}

	draft, derr := mailer.CreatePostmarkTemplate(c.Context(), cfg, body.TemplateName, body.Subject, body.HTMLContent, body.TextContent)
	if derr != nil {
		return jsonError(c, fiber.StatusInternalServerError, derr.Error())
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"templateId": draft.ID,
		"editUrl":    draft.EditURL,
		"message":    draft.Message,
	})
}
