package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// WriteError emits the flat {"error": code} body every failing endpoint
// returns. Codes are short machine-readable strings; detail stays in the
// server log.
func WriteError(c *fiber.Ctx, status int, code string) error {
	if code == "" {
		code = http.StatusText(status)
		if code == "" {
			code = "unknown error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error": code,
	})
}
