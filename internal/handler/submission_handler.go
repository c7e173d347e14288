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

// SubmissionHandler manages the student submission lifecycle and grading routes.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches submission endpoints to the /submissions group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	student := middleware.AuthOptions{Role: middleware.AuthRoleStudent}
	instructor := middleware.AuthOptions{Role: middleware.AuthRoleInstructor}

	router.Post("/assignments/:aid/draft", middleware.WithAuth(h.saveDraft, student))
	router.Post("/assignments/:aid/attachments", middleware.WithAuth(h.uploadAttachment, student))
	router.Post("/assignments/:aid/submit", middleware.WithAuth(h.submit, student))
	router.Get("/assignments/:aid/mine", middleware.WithAuth(h.mine, student))
	router.Get("/assignments/:aid", middleware.WithAuth(h.listByAssignment, instructor))
	router.Get("/:id", middleware.WithAuth(h.get, middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}))
	router.Post("/:id/grade", middleware.WithAuth(h.grade, instructor))
	router.Post("/:id/grade-pass-fail", middleware.WithAuth(h.gradePassFail, instructor))
}

func (h *SubmissionHandler) saveDraft(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "aid")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.SaveDraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	submission, err := h.service.SaveDraft(c.UserContext(), assignmentID, userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, submission, "draft saved")
}

func (h *SubmissionHandler) uploadAttachment(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "aid")
	if err != nil {
		return badRequest(c, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}

	submission, err := h.service.UploadAttachment(c.UserContext(), assignmentID, userIDFromContext(c), file)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, submission, "attachment uploaded")
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "aid")
	if err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.service.Submit(c.UserContext(), assignmentID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission submitted", submission)
}

func (h *SubmissionHandler) mine(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "aid")
	if err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.service.GetForStudent(c.UserContext(), assignmentID, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) listByAssignment(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "aid")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var status *models.SubmissionStatus
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		parsed := models.SubmissionStatus(raw)
		switch parsed {
		case models.SubmissionStatusDraft, models.SubmissionStatusSubmitted, models.SubmissionStatusLate, models.SubmissionStatusGraded:
			status = &parsed
		default:
			return badRequest(c, "invalid status filter")
		}
	}

	submissions, err := h.service.ListByAssignment(c.UserContext(), assignmentID, status)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"count": len(submissions)})
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	submission, err := h.service.Get(c.UserContext(), id, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.GradeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	submission, err := h.service.Grade(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *SubmissionHandler) gradePassFail(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var payload dto.GradePassFailRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	submission, err := h.service.GradePassFail(c.UserContext(), id, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}
