package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// CronAuthMiddleware protects the job entry points. External schedulers must
// present the shared secret as a bearer token. An empty secret disables the
// check for local development.
func CronAuthMiddleware(cronSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cronSecret == "" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader != "Bearer "+cronSecret {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		return c.Next()
	}
}
