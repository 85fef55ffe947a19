package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Allowed origins are unrestricted; the API carries no credentials. The
// method list mirrors the routes that exist, and callers may supply their
// own request id and read the one echoed back.
var (
	corsMethods = strings.Join([]string{
		fiber.MethodGet,
		fiber.MethodPost,
		fiber.MethodDelete,
		fiber.MethodOptions,
	}, ", ")
	corsHeaders = "Origin, Content-Type, Accept, " + RequestIDHeader
)

// CORS answers preflight requests and stamps the response headers browsers
// need to call the API cross-origin.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", corsMethods)
		c.Set("Access-Control-Allow-Headers", corsHeaders)
		c.Set("Access-Control-Expose-Headers", "Content-Length, "+RequestIDHeader)
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
