package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/autoeval-api/internal/config"
	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/handler"
	"github.com/noah-isme/autoeval-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	TopicHandler      *handler.TopicHandler
	SubmissionHandler *handler.SubmissionHandler
	CorrectionHandler *handler.CorrectionHandler
	HealthChecks      map[string]handler.DependencyCheck
	JWTMiddleware     fiber.Handler
	// StaffOnly restricts authoring and grading routes to teachers and admins.
	StaffOnly fiber.Handler
	// AuthLimiter throttles login and registration attempts.
	AuthLimiter fiber.Handler
	// GenerateLimiter throttles the inference-backed routes.
	GenerateLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	orPassthrough := func(h fiber.Handler) fiber.Handler {
		if h == nil {
			return passthrough
		}
		return h
	}

	jwtMiddleware := orPassthrough(deps.JWTMiddleware)
	staff := orPassthrough(deps.StaffOnly)

	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"), orPassthrough(deps.AuthLimiter))
	}

	// Everything registered after this point requires a valid token.
	protected := api.Group("", jwtMiddleware)

	if deps.TopicHandler != nil {
		deps.TopicHandler.Register(protected, staff)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(protected)
		uploads := app.Group(strings.TrimSuffix(dto.UploadsPrefix, "/"), jwtMiddleware)
		deps.SubmissionHandler.RegisterUploads(uploads)
	}

	if deps.CorrectionHandler != nil {
		deps.CorrectionHandler.Register(protected, staff, orPassthrough(deps.GenerateLimiter))
	}
}
