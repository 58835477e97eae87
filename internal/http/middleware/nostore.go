package middleware

import "github.com/gofiber/fiber/v2"

// NoStore marks responses as uncacheable. The kiosk page polls the API, and a
// cached state or display view would show a stale result.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		c.Set(fiber.HeaderCacheControl, "no-store")
		return err
	}
}
