package middleware

import (
	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LocalUserID is the Locals key holding the verified caller id.
const LocalUserID = "user_id"

// LocalEmail holds the caller email when the token carries one.
const LocalEmail = "email"

// TokenExtractor pulls the raw token out of a request.
type TokenExtractor func(c *fiber.Ctx) (string, error)

// FromHeader reads a bearer token from the Authorization header.
func FromHeader(c *fiber.Ctx) (string, error) {
	return auth.BearerToken(c.Get(fiber.HeaderAuthorization))
}

// FromQueryOrHeader prefers the token query parameter, which browsers use
// for websocket handshakes, and falls back to the Authorization header.
func FromQueryOrHeader(c *fiber.Ctx) (string, error) {
	if tok := c.Query("token"); tok != "" {
		return tok, nil
	}
	return FromHeader(c)
}

// Auth verifies the caller before any handler runs. A request that fails
// verification never reaches next.
func Auth(verifier auth.Verifier, extract TokenExtractor, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok, err := extract(c)
		if err != nil {
			log.Debug("auth rejected", zap.String("path", c.Path()), zap.Error(err))
			return WriteError(c, err)
		}
		id, err := verifier.Verify(tok)
		if err != nil {
			log.Debug("auth rejected", zap.String("path", c.Path()), zap.Error(err))
			return WriteError(c, err)
		}
		c.Locals(LocalUserID, id.UserID)
		if id.Email != "" {
			c.Locals(LocalEmail, id.Email)
		}
		return c.Next()
	}
}

// UserID returns the verified caller id set by Auth.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
