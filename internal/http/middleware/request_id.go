package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id on both requests and responses.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID tags every request with an id, honouring one supplied by the
// caller. The id is echoed in the response header and planted in the request
// context so downstream logging can correlate with the access log line.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(RequestIDHeader, rid)
		c.Locals("request_id", rid)
		c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey{}, rid))
		return c.Next()
	}
}

// RequestIDFromContext returns the request id planted by RequestID, or the
// empty string outside a request.
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}
