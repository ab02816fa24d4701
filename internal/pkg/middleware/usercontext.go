package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nwittke/billfox/internal/pkg/session"
	"github.com/nwittke/billfox/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext for every
// request. Core packages never read ambient session state; this is the only
// place the cookie is turned into a user id.
func UserContextMiddleware(c *fiber.Ctx) error {
	// Goth uses its own fiber session store on /auth/*; skip our app session
	// there to prevent cross-store collisions.
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	userCtx := usercontext.UserContext{
		UserID:     userID.(uint),
		Username:   username,
		IsLoggedIn: true,
	}
	c.Locals("USER_CONTEXT", userCtx)
	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUserID, userID.(uint))
	c.Locals(usercontext.KeyUsername, username)

	return c.Next()
}
