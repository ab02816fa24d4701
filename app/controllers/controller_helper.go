package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/cache"
	"github.com/nwittke/billfox/internal/pkg/connect"
	"github.com/nwittke/billfox/internal/pkg/env"
	"github.com/nwittke/billfox/internal/pkg/invoicesync"
	"github.com/nwittke/billfox/internal/pkg/reminder"
	"github.com/nwittke/billfox/internal/pkg/security"
	"github.com/nwittke/billfox/internal/pkg/usercontext"
)

var (
	connectService *connect.Service
	syncEngine     *invoicesync.Engine
	scheduler      *reminder.Scheduler
	stateStore     *security.NonceStore
	encryptionKey  string
)

// InitializeControllers wires the connect service, sync engine and scheduler
// against the global repositories. Must run after database and cache setup.
func InitializeControllers() {
	factory := repository.GetGlobalFactory()
	encryptionKey = env.GetEnv("ENCRYPTION_KEY", "")

	connectService = connect.NewService(
		factory.GetConnectionRepository(),
		encryptionKey,
		connect.NewPayPalClientFromEnv(),
		connect.NewMailchimpClientFromEnv(),
		connect.NewGmailClientFromEnv(),
	)
	syncEngine = invoicesync.NewEngine(
		connectService,
		factory.GetInvoiceRepository(),
		factory.GetConnectionRepository(),
	)
	scheduler = reminder.NewScheduler(
		factory.GetReminderRepository(),
		factory.GetInvoiceRepository(),
	)
	stateStore = security.NewNonceStore(cache.GetClient())
}

// requireUser resolves the authenticated user id or writes a JSON 401.
// The second return value reports whether the request may proceed.
func requireUser(c *fiber.Ctx) (uint, bool) {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
		return 0, false
	}
	return userCtx.UserID, true
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
