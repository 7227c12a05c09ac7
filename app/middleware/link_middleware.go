package middleware

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type LinkVerifier interface {
	VerifyLink(name, token string) error
}

// SignedLinks serves files under prefix only when the request carries a
// valid token query parameter for that file.
func SignedLinks(prefix string, v LinkVerifier) fiber.Handler {
	prefix = strings.TrimRight(prefix, "/") + "/"
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if !strings.HasPrefix(path, prefix) {
			return c.Next()
		}
		name, err := url.PathUnescape(strings.TrimPrefix(path, prefix))
		if err != nil {
			return fiber.ErrNotFound
		}
		if err := v.VerifyLink(name, c.Query("token")); err != nil {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}
