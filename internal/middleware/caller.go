package middleware

import (
	"github.com/gofiber/fiber/v2"
)

const (
	callerIDHeader = "X-Caller-Id"

	// CallerIDLocal is the fiber locals key the caller identity is stored under.
	CallerIDLocal = "caller_id"
)

// CallerID extracts the host-supplied caller identity (the predecessor of the
// call) into request locals. Signature verification happens upstream of this
// service, so the header is trusted as-is.
func CallerID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(CallerIDLocal, c.Get(callerIDHeader))
		return c.Next()
	}
}

// Caller returns the caller identity for the request, empty when absent.
func Caller(c *fiber.Ctx) string {
	id, _ := c.Locals(CallerIDLocal).(string)
	return id
}

// RequireCaller rejects requests that arrive without a caller identity.
func RequireCaller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Caller(c) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+callerIDHeader+" header")
		}
		return c.Next()
	}
}
