package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nwittke/billfox/app/controllers"
	"github.com/nwittke/billfox/internal/pkg/middleware"
	"github.com/nwittke/billfox/internal/pkg/oauth"
	"github.com/nwittke/billfox/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init login oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Wire connect service, sync engine and scheduler
	controllers.InitializeControllers()

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Goth login flow
	app.Get("/auth/:provider", controllers.HandleAuthLogin)
	app.Get("/auth/:provider/callback", controllers.HandleAuthCallback)

	// Provider redirect targets; authentication comes from the state
	// parameter, not the session, since these land in a fresh browser tab.
	app.Get("/api/integrations/paypal/callback", controllers.HandlePayPalCallback)
	app.Get("/api/oauth/mailchimp/callback", controllers.HandleMailchimpCallback)
	app.Get("/api/oauth/gmail/callback", controllers.HandleGmailCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
