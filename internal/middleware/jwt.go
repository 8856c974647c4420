package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/famvault/famvault/internal/domain"
)

// ActorKey is the fiber.Ctx locals key holding the authenticated actor.
const ActorKey = "actor"

// TokenVerifier resolves a bearer token to the actor it was issued for.
type TokenVerifier interface {
	Verify(token string) (domain.ActorContext, error)
}

// JWTAuth validates bearer tokens and stores the actor identity in locals.
func JWTAuth(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(header[len("Bearer "):])
		actor, err := tokens.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(ActorKey, actor)
		return c.Next()
	}
}

// Actor returns the authenticated actor stored by JWTAuth.
func Actor(c *fiber.Ctx) (domain.ActorContext, bool) {
	actor, ok := c.Locals(ActorKey).(domain.ActorContext)
	return actor, ok
}
