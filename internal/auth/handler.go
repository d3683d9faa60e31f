package auth

import (
	"github.com/gofiber/fiber/v2"
)

// Me handles GET /api/auth/me and returns the principal the token maps to.
func Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(fiber.Map{"data": user})
}
