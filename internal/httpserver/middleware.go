package httpserver

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cardland/jared-relay/internal/httpserver/httputil"
)

// originAllowlist rejects cross-origin requests from origins outside the
// configured set before any handler runs. Requests without an Origin header
// (curl, server-to-server) always pass.
func originAllowlist(allowed []string) fiber.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[strings.TrimSpace(origin)] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		origin := strings.TrimSpace(c.Get(fiber.HeaderOrigin))
		if origin == "" {
			return c.Next()
		}
		if _, ok := allowedSet[origin]; !ok {
			log.Printf("blocked origin: %s", origin)
			return httputil.WriteError(c, fiber.StatusForbidden, "origin_not_allowed")
		}

		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
		c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
		c.Set(fiber.HeaderVary, fiber.HeaderOrigin)

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
