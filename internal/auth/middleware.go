package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"nms-backend/internal/engine"
	"nms-backend/internal/metadata"
)

// PrincipalLoader resolves a user name into the principal requests run as.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, name string) (*metadata.UserContext, error)
}

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the UserContext on the request.
func AuthMiddleware(secret string, loader PrincipalLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		user, err := loader.LoadPrincipal(c.UserContext(), claims.Subject)
		if err != nil {
			return err
		}
		c.Locals("user", user)

		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated user is an administrator.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*metadata.UserContext)
		if !ok || user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return engine.ForbiddenError()
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
