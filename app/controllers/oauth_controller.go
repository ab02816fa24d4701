package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/internal/pkg/connect"
	"github.com/nwittke/billfox/internal/pkg/mailer"
	"github.com/nwittke/billfox/internal/pkg/security"
)

const (
	mailchimpCallbackPath = "/api/oauth/mailchimp/callback"
	gmailCallbackPath     = "/api/oauth/gmail/callback"
)

// oauthAuthURL issues a consent URL with a fresh state for the provider.
func oauthAuthURL(c *fiber.Ctx, provider string) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	state, err := security.EncodeState(c.Context(), stateStore, userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to issue oauth state")
	}
	authURL, err := connectService.AuthorizationURL(provider, state)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"authUrl": authURL})
}

// oauthComplete finishes a flow with code+state posted by the SPA. The user
// is taken from the state, not the session, because callback tabs may lack
// the session cookie.
func oauthComplete(c *fiber.Ctx, provider, callbackPath string) error {
	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := c.BodyParser(&body); err != nil || body.Code == "" || body.State == "" {
		return jsonError(c, fiber.StatusBadRequest, "Missing authorization parameters")
	}

	claims, err := security.DecodeState(c.Context(), stateStore, body.State)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	conn, err := connectService.Complete(c.Context(), claims.UserID, provider, body.Code, c.BaseURL()+callbackPath)
	if err != nil {
		var exchErr *connect.TokenExchangeError
		if errors.As(err, &exchErr) {
			return jsonError(c, fiber.StatusInternalServerError, exchErr.Error())
		}
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"accountName":  conn.AccountName,
		"accountEmail": conn.AccountEmail,
	})
}

func oauthCallback(c *fiber.Ctx, provider, callbackPath, settingsSlug string) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return oauthResultPage(c, false, "Missing authorization parameters", "/settings/integrations?error=missing_params")
	}

	claims, err := security.DecodeState(c.Context(), stateStore, state)
	if err != nil {
		return oauthResultPage(c, false, "Invalid authorization state", "/settings/integrations?error="+settingsSlug)
	}

	_, err = connectService.Complete(c.Context(), claims.UserID, provider, code, c.BaseURL()+callbackPath)
	if err != nil {
		return oauthResultPage(c, false, fmt.Sprintf("Connection failed: %v", err), "/settings/integrations?error="+settingsSlug)
	}
	return oauthResultPage(c, true, "Connected successfully!", "/settings/integrations?connected="+settingsSlug)
}

func HandleMailchimpAuthURL(c *fiber.Ctx) error {
	return oauthAuthURL(c, models.ProviderMailchimp)
}

func HandleMailchimpComplete(c *fiber.Ctx) error {
	return oauthComplete(c, models.ProviderMailchimp, mailchimpCallbackPath)
}

func HandleMailchimpCallback(c *fiber.Ctx) error {
	return oauthCallback(c, models.ProviderMailchimp, mailchimpCallbackPath, "mailchimp")
}

func HandleMailchimpStatus(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	conn, err := connectService.Status(c.Context(), userID, models.ProviderMailchimp)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to load connection")
	}
	if conn == nil {
		return c.JSON(fiber.Map{"connected": false})
	}
	return c.JSON(fiber.Map{
		"connected":   true,
		"accountName": conn.AccountName,
		"accountId":   conn.AccountID,
		"connectedAt": conn.CreatedAt,
	})
}

// HandleMailchimpDisconnect removes the connection row entirely.
func HandleMailchimpDisconnect(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	if err := connectService.Disconnect(c.Context(), userID, models.ProviderMailchimp); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to disconnect")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleMailchimpAudiences lists the connected account's audiences.
func HandleMailchimpAudiences(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	conn, err := connectService.Status(c.Context(), userID, models.ProviderMailchimp)
	if err != nil || conn == nil {
		return jsonError(c, fiber.StatusBadRequest, "Mailchimp not connected")
	}

	audiences, err := mailer.ListMailchimpAudiences(c.Context(), connectService, conn)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch audiences")
	}
	return c.JSON(fiber.Map{"audiences": audiences})
}

// HandleMailchimpAddContact upserts a subscriber into an audience.
func HandleMailchimpAddContact(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.BodyParser(&body); err != nil || body.Email == "" {
		return jsonError(c, fiber.StatusBadRequest, "Email is required")
	}

	conn, err := connectService.Status(c.Context(), userID, models.ProviderMailchimp)
	if err != nil || conn == nil {
		return jsonError(c, fiber.StatusBadRequest, "Mailchimp not connected")
	}

	contactID, err := mailer.AddMailchimpContact(c.Context(), connectService, conn, c.Params("audienceId"), body.Email, body.FirstName, body.LastName)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "contactId": contactID})
}

// HandleMailchimpCampaign creates a campaign draft against an audience.
func HandleMailchimpCampaign(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		AudienceID  string `json:"audienceId"`
		Subject     string `json:"subject"`
		PreviewText string `json:"previewText"`
		FromName    string `json:"fromName"`
		HTMLContent string `json:"htmlContent"`
		TextContent string `json:"textContent"`
	}
	if err := c.BodyParser(&body); err != nil || body.AudienceID == "" || body.Subject == "" {
		return jsonError(c, fiber.StatusBadRequest, "Audience and subject are required")
	}

	conn, err := connectService.Status(c.Context(), userID, models.ProviderMailchimp)
	if err != nil || conn == nil {
		return jsonError(c, fiber.StatusBadRequest, "Mailchimp not connected")
	}

	draft, err := mailer.CreateMailchimpCampaign(c.Context(), connectService, conn, body.AudienceID, body.Subject, body.PreviewText, body.FromName, body.HTMLContent, body.TextContent)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"campaignId": draft.ID,
		"editUrl":    draft.EditURL,
		"message":    draft.Message,
	})
}

func HandleGmailAuthURL(c *fiber.Ctx) error {
	return oauthAuthURL(c, models.ProviderGmail)
}

func HandleGmailComplete(c *fiber.Ctx) error {
	return oauthComplete(c, models.ProviderGmail, gmailCallbackPath)
}

func HandleGmailCallback(c *fiber.Ctx) error {
	return oauthCallback(c, models.ProviderGmail, gmailCallbackPath, "gmail")
}

func HandleGmailStatus(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	conn, err := connectService.Status(c.Context(), userID, models.ProviderGmail)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to load connection")
	}
	if conn == nil {
		return c.JSON(fiber.Map{"connected": false})
	}
	return c.JSON(fiber.Map{
		"connected":    true,
		"accountName":  conn.AccountName,
		"accountEmail": conn.AccountEmail,
		"connectedAt":  conn.CreatedAt,
	})
}

// HandleGmailDisconnect removes the connection row entirely.
func HandleGmailDisconnect(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	if err := connectService.Disconnect(c.Context(), userID, models.ProviderGmail); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to disconnect")
	}
	return c.JSON(fiber.Map{"success": true})
}
