package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PlugStatic rejects static requests that climb out of the prefix or reach
// hidden files, before the static handler sees them.
func PlugStatic(staticPrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if !strings.HasPrefix(path, staticPrefix) {
			return c.Next()
		}
		for _, part := range strings.Split(strings.TrimPrefix(path, staticPrefix), "/") {
			if part == ".." || strings.HasPrefix(part, ".") {
				return fiber.ErrNotFound
			}
		}
		return c.Next()
	}
}
