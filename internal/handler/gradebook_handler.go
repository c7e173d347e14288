package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/service"
	"github.com/noah-isme/gema-course-api/internal/utils"
)

// GradebookHandler serves student gradebooks and instance analytics.
type GradebookHandler struct {
	service service.GradebookService
	logger  zerolog.Logger
}

// NewGradebookHandler constructs the handler.
func NewGradebookHandler(service service.GradebookService, logger zerolog.Logger) *GradebookHandler {
	return &GradebookHandler{
		service: service,
		logger:  logger.With().Str("component", "gradebook_handler").Logger(),
	}
}

// RegisterGradebook attaches the student gradebook route to the /submissions group.
func (h *GradebookHandler) RegisterGradebook(router fiber.Router) {
	router.Get("/instances/:id/students/:sid/gradebook",
		middleware.WithAuth(h.gradebook, middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}))
}

// RegisterDashboard attaches analytics routes to the /dashboard group.
func (h *GradebookHandler) RegisterDashboard(router fiber.Router) {
	router.Get("/instances/:id/analytics",
		middleware.WithAuth(h.analytics, middleware.AuthOptions{Role: middleware.AuthRoleInstructor}))
}

func (h *GradebookHandler) gradebook(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	studentID, err := parseUintParam(c, "sid")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !ownsOrInstructs(c, studentID) {
		return utils.SendError(c, fiber.StatusForbidden, "students may only view their own gradebook")
	}

	book, err := h.service.Gradebook(c.UserContext(), instanceID, studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "gradebook retrieved", book)
}

func (h *GradebookHandler) analytics(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	assignmentID, err := parseOptionalUintQuery(c, "assignmentId")
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.InstanceAnalytics(c.UserContext(), instanceID, assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, result, "analytics retrieved", fiber.Map{"cacheHit": result.CacheHit})
}
