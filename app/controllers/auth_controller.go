package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/session"
	"github.com/nwittke/billfox/internal/pkg/usercontext"
)

// HandleAuthLogin starts the Goth provider flow (/auth/:provider).
func HandleAuthLogin(c *fiber.Ctx) error {
	return gothfiber.BeginAuthHandler(c)
}

// HandleAuthCallback completes the provider flow and logs the user in.
// Unknown emails get a fresh user row with a random placeholder password.
func HandleAuthCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}

	users := repository.GetGlobalFactory().GetUserRepository()

	appUser, err := users.GetByEmail(u.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		placeholder := fmt.Sprintf("oauth_%d", time.Now().UnixNano())
		hash, _ := models.HashPassword(placeholder)
		email := u.Email
		if email == "" {
			email = fmt.Sprintf("%s_%s@%s.oauth.local", u.Provider, u.UserID, u.Provider)
		}
		appUser = &models.User{
			Name:      firstNonEmpty(u.Name, u.NickName, u.Email, "User"),
			Email:     email,
			Password:  hash,
			AvatarURL: u.AvatarURL,
			Status:    models.STATUS_ACTIVE,
		}
		if err := users.Create(appUser); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("create user failed: %v", err))
		}
	} else if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("db error: %v", err))
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session init failed")
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, appUser.ID)
	sess.Set(usercontext.KeyUsername, appUser.Name)
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("session save failed")
	}

	_ = users.TouchLastLogin(appUser.ID)

	return c.Redirect("/", fiber.StatusSeeOther)
}

// HandleGetMe returns the authenticated user (/api/users/me).
func HandleGetMe(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "user not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to load user")
	}
	return c.JSON(user)
}

// HandleLogout destroys the session (/api/logout).
func HandleLogout(c *fiber.Ctx) error {
	if sess, err := session.GetSessionStore().Get(c); err == nil {
		_ = sess.Destroy()
	}
	_ = gothfiber.Logout(c)
	return c.JSON(fiber.Map{"success": true})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
