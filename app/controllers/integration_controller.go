package controllers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/connect"
	"github.com/nwittke/billfox/internal/pkg/invoicesync"
	"github.com/nwittke/billfox/internal/pkg/security"
)

const paypalCallbackPath = "/api/integrations/paypal/callback"

// HandlePayPalAuthURL issues the PayPal consent URL with a fresh state.
func HandlePayPalAuthURL(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	state, err := security.EncodeState(c.Context(), stateStore, userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to issue oauth state")
	}
	authURL, err := connectService.AuthorizationURL(models.ProviderPayPal, state)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{
		"authUrl":     authURL,
		"redirectUri": c.BaseURL() + paypalCallbackPath,
	})
}

// HandlePayPalComplete finishes the flow with code+state posted by the SPA.
func HandlePayPalComplete(c *fiber.Ctx) error {
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

	_, err = connectService.Complete(c.Context(), claims.UserID, models.ProviderPayPal, body.Code, c.BaseURL()+paypalCallbackPath)
	if err != nil {
		var exchErr *connect.TokenExchangeError
		if errors.As(err, &exchErr) {
			return jsonError(c, fiber.StatusInternalServerError, exchErr.Error())
		}
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandlePayPalCallback handles the provider redirect directly, for flows
// without the SPA in the middle.
func HandlePayPalCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return oauthResultPage(c, false, "Missing authorization parameters", "/settings/integrations?error=missing_params")
	}

	claims, err := security.DecodeState(c.Context(), stateStore, state)
	if err != nil {
		return oauthResultPage(c, false, "Invalid authorization state", "/settings/integrations?error=paypal")
	}

	_, err = connectService.Complete(c.Context(), claims.UserID, models.ProviderPayPal, code, c.BaseURL()+paypalCallbackPath)
	if err != nil {
		return oauthResultPage(c, false, fmt.Sprintf("Connection failed: %v", err), "/settings/integrations?error=paypal")
	}
	return oauthResultPage(c, true, "PayPal connected successfully!", "/settings/integrations?connected=paypal")
}

// HandlePayPalStatus reports the connection and, when connected, live
// account info. The account fetch is best effort.
func HandlePayPalStatus(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	conn, err := connectService.Status(c.Context(), userID, models.ProviderPayPal)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to load connection")
	}
	if conn == nil || !conn.IsConnected {
		return c.JSON(fiber.Map{"connected": false})
	}

	resp := fiber.Map{
		"connected":      true,
		"lastSynced":     conn.LastSyncedAt,
		"userIdentifier": conn.AccountEmail,
	}

	provider, perr := connectService.Provider(models.ProviderPayPal)
	if perr == nil && conn.AccessTokenEnc != "" {
		var account *connect.Account
		err := connectService.WithAccessToken(c.Context(), conn, func(accessToken string) error {
			var ferr error
			account, ferr = provider.FetchAccount(c.Context(), accessToken)
			return ferr
		})
		if err != nil {
			fiberlog.Errorf("paypal account info fetch failed for user %d: %v", userID, err)
		} else {
			resp["accountId"] = account.ID
			if account.Balance != nil {
				resp["balance"] = account.Balance
			}
		}
	}
	return c.JSON(resp)
}

// HandlePayPalDisconnect clears the stored tokens but keeps the row.
func HandlePayPalDisconnect(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}
	if err := connectService.Disconnect(c.Context(), userID, models.ProviderPayPal); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to disconnect")
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandlePayPalSync runs one full invoice sync.
func HandlePayPalSync(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	result, err := syncEngine.Sync(c.Context(), userID, models.ProviderPayPal)
	if err != nil {
		if errors.Is(err, invoicesync.ErrNotConnected) {
			return jsonError(c, fiber.StatusBadRequest, "PayPal not connected")
		}
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"syncedCount":  result.SyncedCount,
		"updatedCount": result.UpdatedCount,
		"errors":       result.Errors,
		"debug":        result.Debug,
	})
}

// HandleListPayPalInvoices lists the user's synced PayPal invoices. An empty
// read with orphaned rows present adopts them all, matching the sync
// engine's single-tenant policy.
func HandleListPayPalInvoices(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	invoices := repository.GetGlobalFactory().GetInvoiceRepository()
	list, err := invoices.ListByUserAndSource(userID, models.ProviderPayPal)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch invoices")
	}

	if len(list) == 0 {
		total, cerr := invoices.CountBySource(models.ProviderPayPal)
		if cerr == nil && total > 0 {
			if moved, aerr := invoices.AdoptAllBySource(models.ProviderPayPal, userID); aerr == nil && moved > 0 {
				fiberlog.Infof("adopted %d orphaned paypal invoices for user %d", moved, userID)
				list, err = invoices.ListByUserAndSource(userID, models.ProviderPayPal)
				if err != nil {
					return jsonError(c, fiber.StatusInternalServerError, "failed to fetch invoices")
				}
			}
		}
	}

	return c.JSON(fiber.Map{
		"invoices": list,
		"debug": fiber.Map{
			"currentUserId": userID,
			"foundForUser":  len(list),
		},
	})
}

// oauthResultPage renders a small self-redirecting HTML page for callback
// flows that land in a plain browser tab.
func oauthResultPage(c *fiber.Ctx, success bool, message, redirectURL string) error {
	icon := "✕"
	title := "Connection Error"
	if success {
		icon = "✓"
		title = "Connected!"
	}
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>%s</title>
  <meta http-equiv="refresh" content="2;url=%s">
</head>
<body>
  <div style="font-family: system-ui, sans-serif; text-align: center; padding: 2rem;">
    <div style="font-size: 3rem;">%s</div>
    <div>%s</div>
    <div>Redirecting... <a href="%s">Click here</a> if not redirected.</div>
  </div>
</body>
</html>`, title, redirectURL, icon, message, redirectURL)

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(html)
}
