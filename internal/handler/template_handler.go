package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/service"
	"github.com/noah-isme/gema-course-api/internal/utils"
)

// TemplateHandler exposes assignment template and rubric management.
type TemplateHandler struct {
	service   service.GradingCriteriaService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTemplateHandler constructs the handler.
func NewTemplateHandler(service service.GradingCriteriaService, validator *validator.Validate, logger zerolog.Logger) *TemplateHandler {
	return &TemplateHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "template_handler").Logger(),
	}
}

// Register attaches template routes. Every route is instructor only.
func (h *TemplateHandler) Register(router fiber.Router) {
	guard := func(handler fiber.Handler) fiber.Handler {
		return middleware.WithAuth(handler, middleware.AuthOptions{Role: middleware.AuthRoleInstructor})
	}

	router.Post("/courses/:id/templates", guard(h.createTemplate))
	router.Get("/templates/:id", guard(h.getTemplate))
	router.Patch("/templates/:id", guard(h.updateTemplate))
	router.Get("/templates/:id/criteria/validate", guard(h.validate))
	router.Put("/templates/:id/criteria/reorder", guard(h.reorder))
	router.Get("/templates/:id/criteria", guard(h.listCriteria))
	router.Post("/templates/:id/criteria", guard(h.createCriteria))
	router.Patch("/criteria/:id", guard(h.updateCriteria))
	router.Delete("/criteria/:id", guard(h.deleteCriteria))
}

func (h *TemplateHandler) createTemplate(c *fiber.Ctx) error {
	courseID, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.TemplateCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	template, err := h.service.CreateTemplate(c.UserContext(), courseID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, template, "template created")
}

func (h *TemplateHandler) getTemplate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.service.GetTemplate(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "template retrieved", template)
}

func (h *TemplateHandler) updateTemplate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.TemplateUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	template, err := h.service.UpdateTemplate(c.UserContext(), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "template updated", template)
}

func (h *TemplateHandler) listCriteria(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	criteria, err := h.service.ListCriteria(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "criteria retrieved", criteria)
}

func (h *TemplateHandler) createCriteria(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.CriteriaCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	criteria, err := h.service.CreateCriteria(c.UserContext(), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, criteria, "criteria created")
}

func (h *TemplateHandler) updateCriteria(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.CriteriaUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	criteria, err := h.service.UpdateCriteria(c.UserContext(), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "criteria updated", criteria)
}

func (h *TemplateHandler) deleteCriteria(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.service.DeleteCriteria(c.UserContext(), id); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "criteria deleted", fiber.Map{"id": id})
}

func (h *TemplateHandler) reorder(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.CriteriaReorderRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	criteria, err := h.service.Reorder(c.UserContext(), id, payload.OrderedIDs)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "criteria reordered", criteria)
}

func (h *TemplateHandler) validate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.Validate(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "criteria validated", result)
}
