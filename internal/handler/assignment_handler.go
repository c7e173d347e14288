package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/service"
	"github.com/noah-isme/gema-course-api/internal/utils"
)

// AssignmentHandler wires published assignment routes.
type AssignmentHandler struct {
	service   service.AssignmentPublisherService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service service.AssignmentPublisherService, validator *validator.Validate, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the versioned API group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	instructor := middleware.AuthOptions{Role: middleware.AuthRoleInstructor}
	anyUser := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	router.Post("/instances/:id/assignments/publish", middleware.WithAuth(h.publish, instructor))
	router.Get("/instances/:id/assignments", middleware.WithAuth(h.listByInstance, anyUser))
	router.Post("/assignments/auto-publish", middleware.RequireRole("admin", "system"), h.autoPublish)
	router.Get("/assignments/:id", middleware.WithAuth(h.get, anyUser))
	router.Post("/assignments/:id/transition", middleware.WithAuth(h.transition, instructor))
	router.Post("/assignments/:id/toggle", middleware.WithAuth(h.toggle, instructor))
}

func (h *AssignmentHandler) publish(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.PublishAssignmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	assignment, err := h.service.Publish(c.UserContext(), instanceID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, assignment, "assignment published")
}

func (h *AssignmentHandler) listByInstance(c *fiber.Ctx) error {
	instanceID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	assignments, err := h.service.ListByInstance(c.UserContext(), instanceID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, assignments, "assignments retrieved", fiber.Map{"count": len(assignments)})
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	assignment, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) transition(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.AssignmentTransitionRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	return h.applyAction(c, id, models.AssignmentAction(payload.Action))
}

func (h *AssignmentHandler) toggle(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	return h.applyAction(c, id, models.AssignmentActionToggle)
}

func (h *AssignmentHandler) applyAction(c *fiber.Ctx, id uint, action models.AssignmentAction) error {
	assignment, err := h.service.Transition(c.UserContext(), id, action, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment status updated", assignment)
}

func (h *AssignmentHandler) autoPublish(c *fiber.Ctx) error {
	result, err := h.service.PublishDue(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "scheduled assignments published", result)
}
