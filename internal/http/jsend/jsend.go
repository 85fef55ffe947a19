// Package jsend renders API responses as a tagged success/fail/error
// envelope. Fail carries field-level validation problems the caller can
// correct; Error carries an opaque message for faults on our side.
package jsend

import "github.com/gofiber/fiber/v2"

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Envelope is the wire shape of every API response.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// Success writes a success envelope with the given payload.
func Success(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Status: StatusSuccess, Data: data})
}

// Fail writes a fail envelope. The payload names what the caller must fix.
func Fail(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Status: StatusFail, Data: data})
}

// Error writes an error envelope with an opaque message.
func Error(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(Envelope{Status: StatusError, Data: message})
}
