package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ChannelAuth requires the shared channel bearer token on every request.
// The comparison is constant-time so the token cannot be probed byte by byte.
func ChannelAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		presented := strings.TrimPrefix(authHeader, "Bearer ")
		if presented == authHeader || presented == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}
		return c.Next()
	}
}
