package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-grader/internal/config"
	"github.com/noah-isme/gema-exam-grader/internal/handler"
	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler *handler.GradingHandler
	HealthHandler  *handler.HealthHandler
	SeedHandler    *handler.SeedHandler
	JWTMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	if deps.HealthHandler != nil {
		api.Get("/health", deps.HealthHandler.Check)
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	grading := app.Group("/api/v2/grading",
		jwtMiddleware,
		middleware.RequireRole(middleware.AuthRoleTeacher, middleware.AuthRoleAdmin),
		middleware.RateLimit("grading", cfg.RateLimitMax, cfg.RateLimitWindow),
	)
	if deps.HealthHandler != nil {
		grading.Post("/services/restart", middleware.WithAuth(deps.HealthHandler.Restart, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(grading)
	}

	// Seeding is guarded by its own token
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(app.Group("/api/v2/seed"))
	}
}
