// Package httpapi is the fiber transport: thin handlers over the provisioning
// workflow, the token service, and the federated login bridge.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/nutrivida/api/internal/audit"
	"github.com/nutrivida/api/internal/auth"
	"github.com/nutrivida/api/internal/config"
	"github.com/nutrivida/api/internal/provision"
	"github.com/nutrivida/api/internal/repository"
	"github.com/nutrivida/api/internal/social"
)

// Server owns the fiber app and the routing table.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	repo     repository.Manager
	workflow *provision.Workflow
	bridge   *social.Bridge
	tokens   *auth.TokenService
	recorder audit.Recorder
	logger   *zap.Logger
}

// New builds the HTTP server and registers every route.
func New(
	cfg *config.Config,
	repo repository.Manager,
	workflow *provision.Workflow,
	bridge *social.Bridge,
	tokens *auth.TokenService,
	recorder audit.Recorder,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		repo:     repo,
		workflow: workflow,
		bridge:   bridge,
		tokens:   tokens,
		recorder: audit.Normalize(recorder),
		logger:   logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "nutrivida-api",
		ErrorHandler: NewErrorHandler(logger, cfg.AppDebug),
	})

	// Credentialed CORS is incompatible with a wildcard origin; the wildcard
	// config drops the credentials flag instead of failing at startup.
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: cfg.CORSCredentials && cfg.CORSOrigins != "*",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	s.routes()

	return s
}

func (s *Server) routes() {
	s.app.Post("/register", s.handleRegister)
	s.app.Post("/login", s.handleLogin)
	s.app.Post("/logout", s.requireAuth(), s.handleLogout)
	s.app.Get("/me", s.requireAuth(), s.handleMe)
	s.app.Post("/onboarding/finalize", s.requireAuth(), s.handleFinalizeOnboarding)

	s.app.Get("/oauth/:provider/redirect", s.handleOAuthRedirect)
	s.app.Get("/oauth/:provider/callback", s.handleOAuthCallback)
	s.app.Post("/auth/google/token", s.handleGoogleToken)

	s.app.Get("/diagnostic", s.handleDiagnostic)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on the given address.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
