package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/provision"
)

func requestMeta(c *fiber.Ctx) provision.RequestMeta {
	return provision.RequestMeta{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func badBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "Cuerpo de la petición inválido").
		WithTextCode("INVALID_BODY")
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var in provision.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(err)
	}

	result, err := s.workflow.Register(c.UserContext(), in, requestMeta(c))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var in provision.LoginInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(err)
	}

	result, err := s.workflow.Login(c.UserContext(), in, requestMeta(c))
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// handleLogout revokes only the credential presented on this request.
func (s *Server) handleLogout(c *fiber.Ctx) error {
	record, ok := currentToken(c)
	if !ok {
		return auth.Unauthenticated()
	}

	if err := s.tokens.Revoke(c.UserContext(), record.ID); err != nil {
		return err
	}

	s.recorder.Record(c.UserContext(), audit.Event{
		Type:   audit.EventLogout,
		Level:  audit.LevelInfo,
		UserID: record.UserID.String(),
		Metadata: map[string]any{
			"ip": c.IP(),
		},
	})

	return c.JSON(fiber.Map{"message": "Sesión cerrada exitosamente"})
}

// handleMe returns the raw authenticated user, no paciente attachment.
func (s *Server) handleMe(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return auth.Unauthenticated()
	}

	return c.JSON(user)
}

func (s *Server) handleFinalizeOnboarding(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return auth.Unauthenticated()
	}

	var in provision.OnboardingInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(err)
	}

	result, err := s.workflow.FinalizeOnboarding(c.UserContext(), user, in, requestMeta(c))
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (s *Server) handleOAuthRedirect(c *fiber.Ctx) error {
	target, err := s.bridge.AuthCodeURL(c.Params("provider"), c.Query("state"))
	if err != nil {
		return c.Redirect(s.bridge.LoginURL(), fiber.StatusFound)
	}

	return c.Redirect(target, fiber.StatusFound)
}

func (s *Server) handleOAuthCallback(c *fiber.Ctx) error {
	target := s.bridge.CompleteAuth(c.UserContext(), c.Params("provider"), c.Query("code"))
	return c.Redirect(target, fiber.StatusFound)
}

// handleGoogleToken is the mobile flow: the client sends a Google access token
// directly, in the body or as an Authorization bearer.
func (s *Server) handleGoogleToken(c *fiber.Ctx) error {
	var body struct {
		AccessToken string `json:"access_token"`
	}
	// An empty or non-JSON body is fine as long as the header carries the token.
	_ = c.BodyParser(&body)

	token := strings.TrimSpace(body.AccessToken)
	if token == "" {
		if bearer, ok := bearerToken(c.Get(fiber.HeaderAuthorization)); ok {
			token = bearer
		}
	}

	if token == "" {
		return goerrors.New("Falta access_token o Authorization Bearer", goerrors.CategoryValidation).
			WithTextCode("MISSING_ACCESS_TOKEN").
			WithMetadata(map[string]any{
				"errors": map[string]any{"access_token": "cannot be blank"},
			})
	}

	result, err := s.bridge.TokenLogin(c.UserContext(), token)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// handleDiagnostic reports connectivity and allowlisted configuration. It
// never returns secrets and never propagates introspection failures.
func (s *Server) handleDiagnostic(c *fiber.Ctx) error {
	db := fiber.Map{"status": "connected", "driver": s.cfg.DBDriver}
	if err := s.repo.Ping(c.UserContext()); err != nil {
		db["status"] = "error"
		db["error"] = err.Error()
	}

	return c.JSON(fiber.Map{
		"app": fiber.Map{
			"env":          s.cfg.AppEnv,
			"debug":        s.cfg.AppDebug,
			"url":          s.cfg.AppURL,
			"frontend_url": s.cfg.FrontendURL,
		},
		"database": db,
		"session": fiber.Map{
			"domain":       s.cfg.SessionDomain,
			"lifetime_min": s.cfg.SessionLifetimeMin,
		},
		"cors": fiber.Map{
			"allowed_origins":      len(s.cfg.CORSOriginList()),
			"supports_credentials": s.cfg.CORSCredentials,
		},
		"token_guard": fiber.Map{
			"type": auth.TokenType,
			"name": auth.TokenName,
		},
	})
}
