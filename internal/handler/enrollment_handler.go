package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/service"
	"github.com/noah-isme/gema-course-api/internal/utils"
)

// EnrollmentHandler exposes enrollment management and final grade routes.
type EnrollmentHandler struct {
	service service.EnrollmentService
	grades  service.FinalGradeCalculator
	logger  zerolog.Logger
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(service service.EnrollmentService, grades service.FinalGradeCalculator, logger zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		service: service,
		grades:  grades,
		logger:  logger.With().Str("component", "enrollment_handler").Logger(),
	}
}

// Register attaches enrollment endpoints to the /enrollments group. enrollLimiter, when
// set, guards the self-service enroll route.
func (h *EnrollmentHandler) Register(router fiber.Router, enrollLimiter fiber.Handler) {
	instructor := middleware.AuthOptions{Role: middleware.AuthRoleInstructor}
	anyUser := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	enroll := []fiber.Handler{}
	if enrollLimiter != nil {
		enroll = append(enroll, enrollLimiter)
	}
	enroll = append(enroll, middleware.WithAuth(h.enroll, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))

	router.Post("/instances/:id/enroll", enroll...)
	router.Post("/instances/:id/bulk-enroll", middleware.WithAuth(h.bulkEnroll, instructor))
	router.Get("/instances/:id/students/:sid/final-grade", middleware.WithAuth(h.finalGrade, anyUser))
	router.Get("/instances/:id", middleware.WithAuth(h.listByInstance, instructor))
	router.Post("/:id/drop", middleware.WithAuth(h.drop, anyUser))
	router.Patch("/:id/status", middleware.WithAuth(h.updateStatus, instructor))
}

func (h *EnrollmentHandler) enroll(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	enrollment, err := h.service.Enroll(c.UserContext(), instanceID, userIDFromContext(c), activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, enrollment, "enrolled")
}

func (h *EnrollmentHandler) bulkEnroll(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.BulkEnrollRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	result, err := h.service.BulkEnroll(c.UserContext(), instanceID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, result, "bulk enrollment processed", fiber.Map{
		"successful": len(result.Successful),
		"failed":     len(result.Failed),
	})
}

func (h *EnrollmentHandler) listByInstance(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var status *models.EnrollmentStatus
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		parsed := models.EnrollmentStatus(raw)
		switch parsed {
		case models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, models.EnrollmentStatusCompleted:
			status = &parsed
		default:
			return badRequest(c, "invalid status filter")
		}
	}

	enrollments, err := h.service.ListByInstance(c.UserContext(), instanceID, status)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, enrollments, "enrollments retrieved", fiber.Map{"count": len(enrollments)})
}

func (h *EnrollmentHandler) drop(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	enrollment, err := h.service.Drop(c.UserContext(), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "enrollment dropped", enrollment)
}

func (h *EnrollmentHandler) updateStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.EnrollmentStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	enrollment, err := h.service.UpdateStatus(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "enrollment updated", enrollment)
}

func (h *EnrollmentHandler) finalGrade(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	studentID, err := parseUintParam(c, "sid")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !ownsOrInstructs(c, studentID) {
		return utils.SendError(c, fiber.StatusForbidden, "students may only view their own grades")
	}

	grade, err := h.grades.FinalGrade(c.UserContext(), instanceID, studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "final grade computed", grade)
}
