package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-course-api/internal/config"
	"github.com/noah-isme/gema-course-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	TemplateHandler   *handler.TemplateHandler
	SubmissionHandler *handler.SubmissionHandler
	EnrollmentHandler *handler.EnrollmentHandler
	GradebookHandler  *handler.GradebookHandler
	ActivityHandler   *handler.ActivityHandler
	EventStream       *handler.EventStreamHandler
	JWTMiddleware     fiber.Handler
	EnrollLimiter     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Submission routes share /submissions with the gradebook view.
	submissions := api.Group("/submissions", jwtMiddleware)
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(submissions)
	}
	if deps.GradebookHandler != nil {
		deps.GradebookHandler.RegisterGradebook(submissions)
		deps.GradebookHandler.RegisterDashboard(api.Group("/dashboard", jwtMiddleware))
	}

	if deps.EnrollmentHandler != nil {
		deps.EnrollmentHandler.Register(api.Group("/enrollments", jwtMiddleware), deps.EnrollLimiter)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activity", jwtMiddleware))
	}

	if deps.EventStream != nil {
		deps.EventStream.Register(api.Group("/events", jwtMiddleware))
	}

	// Course content lives at the top of the versioned group.
	content := api.Group("", jwtMiddleware)
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(content)
	}
	if deps.TemplateHandler != nil {
		deps.TemplateHandler.Register(content)
	}
}
