package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDHeader carries the authenticated owner, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// RequireUser rejects requests without an owner. WebSocket clients that
// cannot set headers may pass user_id as a query parameter.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+UserIDHeader+" header")
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// UserID returns the owner stored by RequireUser.
func UserID(c *fiber.Ctx) string {
	v, _ := c.Locals(userIDKey).(string)
	return v
}
