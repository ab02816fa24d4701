package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nwittke/billfox/app/controllers"
	"github.com/nwittke/billfox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// Session-less endpoints. The OAuth complete calls authenticate through
	// the signed state parameter instead of the session cookie.
	api.Get("/logout", controllers.HandleLogout)
	api.Post("/integrations/paypal/complete-oauth", controllers.HandlePayPalComplete)
	api.Post("/oauth/mailchimp/complete", controllers.HandleMailchimpComplete)
	api.Post("/oauth/gmail/complete", controllers.HandleGmailComplete)

	authed := api.Group("", middleware.RequireAPISessionAuth)

	authed.Get("/users/me", controllers.HandleGetMe)

	// PayPal invoicing integration
	authed.Get("/integrations/paypal/auth-url", controllers.HandlePayPalAuthURL)
	authed.Get("/integrations/paypal/status", controllers.HandlePayPalStatus)
	authed.Post("/integrations/paypal/disconnect", controllers.HandlePayPalDisconnect)
	authed.Post("/integrations/paypal/sync", controllers.HandlePayPalSync)
	authed.Get("/invoices/paypal", controllers.HandleListPayPalInvoices)

	// Scheduled reminders
	authed.Post("/reminders/scheduled", controllers.HandleCreateReminders)
	authed.Get("/reminders/scheduled", controllers.HandleListReminders)
	authed.Put("/reminders/scheduled/:id", controllers.HandleUpdateReminder)
	authed.Delete("/reminders/scheduled/:id", controllers.HandleDeleteReminder)
	authed.Post("/reminders/test-send", controllers.HandleReminderTestSend)

	// Outbound email provider configuration
	authed.Get("/email-providers/status", controllers.HandleEmailProviderStatus)
	authed.Post("/email-providers", controllers.HandleSaveEmailProvider)
	authed.Delete("/email-providers/:provider", controllers.HandleDeleteEmailProvider)
	authed.Post("/email-providers/update-sender", controllers.HandleUpdateEmailProviderSender)

	// Email templates
	authed.Get("/templates", controllers.HandleListTemplates)
	authed.Post("/templates", controllers.HandleCreateTemplate)
	authed.Put("/templates/:id", controllers.HandleUpdateTemplate)
	authed.Delete("/templates/:id", controllers.HandleDeleteTemplate)
	authed.Post("/templates/test-send", controllers.HandleTemplateTestSend)

	// Mailchimp marketing connection
	authed.Get("/oauth/mailchimp/auth-url", controllers.HandleMailchimpAuthURL)
	authed.Get("/oauth/mailchimp/status", controllers.HandleMailchimpStatus)
	authed.Post("/oauth/mailchimp/disconnect", controllers.HandleMailchimpDisconnect)
	authed.Get("/oauth/mailchimp/audiences", controllers.HandleMailchimpAudiences)
	authed.Post("/oauth/mailchimp/audiences/:audienceId/contacts", controllers.HandleMailchimpAddContact)
	authed.Post("/oauth/mailchimp/campaigns", controllers.HandleMailchimpCampaign)

	// Gmail connection
	authed.Get("/oauth/gmail/auth-url", controllers.HandleGmailAuthURL)
	authed.Get("/oauth/gmail/status", controllers.HandleGmailStatus)
	authed.Post("/oauth/gmail/disconnect", controllers.HandleGmailDisconnect)

	// Campaign drafts in external tools
	authed.Post("/campaigns/gmail", controllers.HandleGmailCampaign)
	authed.Post("/campaigns/brevo", controllers.HandleBrevoCampaign)
	authed.Post("/campaigns/sendgrid", controllers.HandleSendGridCampaign)
	authed.Post("/campaigns/postmark", controllers.HandlePostmarkCampaign)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
