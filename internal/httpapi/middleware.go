package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/models"
)

const (
	localUser  = "auth_user"
	localToken = "auth_access_token"
)

// requireAuth resolves the opaque bearer credential and loads the identity it
// belongs to. Any failure yields the same generic 401.
func (s *Server) requireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		bearer, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return auth.Unauthenticated()
		}

		record, err := s.tokens.Resolve(c.UserContext(), bearer)
		if err != nil {
			return err
		}

		user, err := s.repo.Users().GetByID(c.UserContext(), record.UserID.String())
		if err != nil {
			return auth.Unauthenticated()
		}

		c.Locals(localUser, user)
		c.Locals(localToken, record)

		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func currentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(localUser).(*models.User)
	return user, ok && user != nil
}

func currentToken(c *fiber.Ctx) (*models.AccessToken, bool) {
	record, ok := c.Locals(localToken).(*models.AccessToken)
	return record, ok && record != nil
}
