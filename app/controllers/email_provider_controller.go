package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
)

// HandleEmailProviderStatus reports which providers the user has configured.
func HandleEmailProviderStatus(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	configs, err := repository.GetGlobalFactory().GetEmailProviderRepository().ListActive(userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch provider status")
	}

	providers := map[string]fiber.Map{}
	for _, name := range models.APIEmailProviders {
		providers[name] = fiber.Map{"configured": false}
	}
	for _, name := range models.SMTPEmailProviders {
		providers[name] = fiber.Map{"configured": false}
	}
	for _, cfg := range configs {
		providers[cfg.ProviderName] = fiber.Map{
			"configured":   true,
			"fromEmail":    cfg.FromEmail,
			"fromName":     cfg.FromName,
			"providerType": cfg.ProviderType,
		}
	}
	return c.JSON(fiber.Map{"providers": providers})
}

// HandleSaveEmailProvider creates or replaces a provider configuration.
func HandleSaveEmailProvider(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		ProviderName string `json:"providerName"`
		APIKey       string `json:"apiKey"`
		FromEmail    string `json:"fromEmail"`
		FromName     string `json:"fromName"`
		ProviderType string `json:"providerType"`
		SMTPHost     string `json:"smtpHost"`
		SMTPPort     int    `json:"smtpPort"`
		SMTPSecure   bool   `json:"smtpSecure"`
		SMTPUsername string `json:"smtpUsername"`
	}
	if err := c.BodyParser(&body); err != nil || body.ProviderName == "" || body.APIKey == "" {
		return jsonError(c, fiber.StatusBadRequest, "Provider name and credentials are required")
	}
	if !models.ValidEmailProvider(body.ProviderName) {
		return jsonError(c, fiber.StatusBadRequest, "Invalid provider")
	}
	if models.IsSMTPProvider(body.ProviderName) && body.FromEmail == "" {
		return jsonError(c, fiber.StatusBadRequest, "Email address is required for personal email providers")
	}

	providerType := body.ProviderType
	if providerType == "" {
		providerType = models.EmailProviderTypeAPI
	}
	config := &models.EmailProvider{
		UserID:       userID,
		ProviderName: body.ProviderName,
		APIKey:       body.APIKey,
		FromEmail:    body.FromEmail,
		FromName:     body.FromName,
		ProviderType: providerType,
		SMTPHost:     body.SMTPHost,
		SMTPPort:     body.SMTPPort,
		SMTPSecure:   body.SMTPSecure,
		SMTPUsername: body.SMTPUsername,
	}
	if err := repository.GetGlobalFactory().GetEmailProviderRepository().Upsert(config); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to save provider configuration")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleDeleteEmailProvider soft-deletes a configuration.
func HandleDeleteEmailProvider(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	if err := repository.GetGlobalFactory().GetEmailProviderRepository().Deactivate(userID, c.Params("provider")); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to delete provider")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleUpdateEmailProviderSender changes the sender address.
func HandleUpdateEmailProviderSender(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var body struct {
		ProviderName string `json:"providerName"`
		FromEmail    string `json:"fromEmail"`
	}
	if err := c.BodyParser(&body); err != nil || body.ProviderName == "" || body.FromEmail == "" {
		return jsonError(c, fiber.StatusBadRequest, "Provider name and sender email are required")
	}

	repo := repository.GetGlobalFactory().GetEmailProviderRepository()
	if _, err := repo.GetActive(userID, body.ProviderName); err != nil {
		return jsonError(c, fiber.StatusNotFound, "Provider not found")
	}
	if err := repo.UpdateSender(userID, body.ProviderName, body.FromEmail); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to update sender email")
	}
	return c.JSON(fiber.Map{"success": true})
}
