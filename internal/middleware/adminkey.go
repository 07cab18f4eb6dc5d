package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKey guards owner-only endpoints by comparing the presented key against
// a bcrypt hash from configuration. An empty hash disables the endpoints
// entirely rather than leaving them open.
func AdminKey(keyHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			return fiber.NewError(http.StatusForbidden, "admin endpoints are disabled")
		}
		key := c.Get(adminKeyHeader)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+adminKeyHeader+" header")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			return fiber.NewError(http.StatusForbidden, "invalid admin key")
		}
		return c.Next()
	}
}
