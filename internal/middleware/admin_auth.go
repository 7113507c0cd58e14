package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/vendibot/vendibot-backend/internal/config"
)

// RequireAdminKey guards admin endpoints with a shared key sent in the
// X-Admin-Key header. With no key configured the check is skipped so local
// development keeps working.
func RequireAdminKey(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminAPIKey == "" {
			return c.Next()
		}

		provided := c.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.AdminAPIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin key",
			})
		}

		return c.Next()
	}
}
