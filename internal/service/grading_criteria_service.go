package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

const criteriaSumEpsilon = 1e-9

// GradingCriteriaService manages assignment templates and their rubric criteria.
// Edits never reach published snapshots.
type GradingCriteriaService interface {
	CreateTemplate(ctx context.Context, courseID uint, payload dto.TemplateCreateRequest) (dto.TemplateResponse, error)
	GetTemplate(ctx context.Context, templateID uint) (dto.TemplateResponse, error)
	UpdateTemplate(ctx context.Context, templateID uint, payload dto.TemplateUpdateRequest) (dto.TemplateResponse, error)
	ListCriteria(ctx context.Context, templateID uint) ([]dto.CriteriaResponse, error)
	CreateCriteria(ctx context.Context, templateID uint, payload dto.CriteriaCreateRequest) (dto.CriteriaResponse, error)
	UpdateCriteria(ctx context.Context, criteriaID uint, payload dto.CriteriaUpdateRequest) (dto.CriteriaResponse, error)
	DeleteCriteria(ctx context.Context, criteriaID uint) error
	Reorder(ctx context.Context, templateID uint, orderedIDs []uint) ([]dto.CriteriaResponse, error)
	Validate(ctx context.Context, templateID uint) (dto.CriteriaValidationResponse, error)
}

type gradingCriteriaService struct {
	courses   repository.CourseRepository
	templates repository.TemplateRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingCriteriaService builds the template and rubric service.
func NewGradingCriteriaService(courses repository.CourseRepository, templates repository.TemplateRepository, validate *validator.Validate, logger zerolog.Logger) GradingCriteriaService {
	return &gradingCriteriaService{
		courses:   courses,
		templates: templates,
		validator: validate,
		logger:    logger.With().Str("component", "grading_criteria_service").Logger(),
	}
}

func (s *gradingCriteriaService) CreateTemplate(ctx context.Context, courseID uint, payload dto.TemplateCreateRequest) (dto.TemplateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TemplateResponse{}, err
	}

	mode := models.GradingMode(payload.GradingMode)
	if err := checkMaxPoints(mode, payload.MaxPoints); err != nil {
		return dto.TemplateResponse{}, err
	}

	if _, err := s.courses.GetCourse(ctx, courseID); err != nil {
		return dto.TemplateResponse{}, notFoundAs(err, "course")
	}

	template := models.AssignmentTemplate{
		CourseID:         courseID,
		Title:            strings.TrimSpace(payload.Title),
		Description:      payload.Description,
		AssignmentType:   models.AssignmentType(payload.AssignmentType),
		GradingMode:      mode,
		MaxPoints:        payload.MaxPoints,
		WeightPercentage: payload.WeightPercentage,
		SortOrder:        payload.SortOrder,
	}

	if err := s.templates.Create(ctx, &template); err != nil {
		return dto.TemplateResponse{}, err
	}

	s.logger.Info().Uint("template_id", template.ID).Uint("course_id", courseID).Msg("assignment template created")

	return dto.NewTemplateResponse(template), nil
}

func (s *gradingCriteriaService) GetTemplate(ctx context.Context, templateID uint) (dto.TemplateResponse, error) {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return dto.TemplateResponse{}, notFoundAs(err, "assignment template")
	}
	return dto.NewTemplateResponse(template), nil
}

func (s *gradingCriteriaService) UpdateTemplate(ctx context.Context, templateID uint, payload dto.TemplateUpdateRequest) (dto.TemplateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TemplateResponse{}, err
	}

	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return dto.TemplateResponse{}, notFoundAs(err, "assignment template")
	}

	if payload.Title != nil {
		template.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		template.Description = *payload.Description
	}
	if payload.AssignmentType != nil {
		template.AssignmentType = models.AssignmentType(*payload.AssignmentType)
	}
	if payload.GradingMode != nil {
		template.GradingMode = models.GradingMode(*payload.GradingMode)
	}
	if payload.MaxPoints != nil {
		template.MaxPoints = payload.MaxPoints
	}
	if payload.WeightPercentage != nil {
		template.WeightPercentage = payload.WeightPercentage
	}
	if payload.SortOrder != nil {
		template.SortOrder = *payload.SortOrder
	}

	if err := checkMaxPoints(template.GradingMode, template.MaxPoints); err != nil {
		return dto.TemplateResponse{}, err
	}

	if err := s.templates.Update(ctx, &template); err != nil {
		return dto.TemplateResponse{}, err
	}

	s.logger.Info().Uint("template_id", template.ID).Msg("assignment template updated")

	return dto.NewTemplateResponse(template), nil
}

func (s *gradingCriteriaService) ListCriteria(ctx context.Context, templateID uint) ([]dto.CriteriaResponse, error) {
	if _, err := s.templates.GetByID(ctx, templateID); err != nil {
		return nil, notFoundAs(err, "assignment template")
	}

	criteria, err := s.templates.ListCriteria(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return dto.NewCriteriaResponseSlice(criteria), nil
}

func (s *gradingCriteriaService) CreateCriteria(ctx context.Context, templateID uint, payload dto.CriteriaCreateRequest) (dto.CriteriaResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CriteriaResponse{}, err
	}

	if _, err := s.templates.GetByID(ctx, templateID); err != nil {
		return dto.CriteriaResponse{}, notFoundAs(err, "assignment template")
	}

	criteria := models.GradingCriteriaTemplate{
		TemplateID: templateID,
		Name:       strings.TrimSpace(payload.Name),
		MaxPoints:  payload.MaxPoints,
	}
	if err := s.templates.AppendCriteria(ctx, &criteria); err != nil {
		return dto.CriteriaResponse{}, err
	}

	s.logger.Info().Uint("template_id", templateID).Uint("criteria_id", criteria.ID).Msg("grading criteria added")

	return dto.NewCriteriaResponse(criteria), nil
}

func (s *gradingCriteriaService) UpdateCriteria(ctx context.Context, criteriaID uint, payload dto.CriteriaUpdateRequest) (dto.CriteriaResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CriteriaResponse{}, err
	}

	criteria, err := s.templates.GetCriteria(ctx, criteriaID)
	if err != nil {
		return dto.CriteriaResponse{}, notFoundAs(err, "grading criteria")
	}

	if payload.Name != nil {
		criteria.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.MaxPoints != nil {
		criteria.MaxPoints = *payload.MaxPoints
	}

	if err := s.templates.UpdateCriteria(ctx, &criteria); err != nil {
		return dto.CriteriaResponse{}, err
	}

	return dto.NewCriteriaResponse(criteria), nil
}

func (s *gradingCriteriaService) DeleteCriteria(ctx context.Context, criteriaID uint) error {
	if err := s.templates.DeleteCriteria(ctx, criteriaID); err != nil {
		return notFoundAs(err, "grading criteria")
	}

	s.logger.Info().Uint("criteria_id", criteriaID).Msg("grading criteria deleted")
	return nil
}

func (s *gradingCriteriaService) Reorder(ctx context.Context, templateID uint, orderedIDs []uint) ([]dto.CriteriaResponse, error) {
	if _, err := s.templates.GetByID(ctx, templateID); err != nil {
		return nil, notFoundAs(err, "assignment template")
	}

	reordered, err := s.templates.ReorderCriteria(ctx, templateID, orderedIDs)
	if err != nil {
		if errors.Is(err, repository.ErrReorderMismatch) {
			return nil, apperror.BadRequest(apperror.CodeInvalidReorder, "orderedIds must list every criteria of the template exactly once")
		}
		return nil, err
	}

	return dto.NewCriteriaResponseSlice(reordered), nil
}

// Validate reports whether the criteria sum matches the template maximum. The result is advisory.
func (s *gradingCriteriaService) Validate(ctx context.Context, templateID uint) (dto.CriteriaValidationResponse, error) {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return dto.CriteriaValidationResponse{}, notFoundAs(err, "assignment template")
	}

	return validateCriteriaSum(template), nil
}

func validateCriteriaSum(template models.AssignmentTemplate) dto.CriteriaValidationResponse {
	sum := 0.0
	for _, criterion := range template.Criteria {
		sum += criterion.MaxPoints
	}

	maxPoints := 0.0
	if template.MaxPoints != nil {
		maxPoints = *template.MaxPoints
	}
	delta := sum - maxPoints

	valid := len(template.Criteria) == 0
	if !valid && template.MaxPoints != nil {
		valid = math.Abs(delta) <= criteriaSumEpsilon
	}

	return dto.CriteriaValidationResponse{
		IsValid:       valid,
		SumOfCriteria: sum,
		MaxPoints:     template.MaxPoints,
		Delta:         delta,
	}
}

func checkMaxPoints(mode models.GradingMode, maxPoints *float64) error {
	if mode == models.GradingModePoints && (maxPoints == nil || *maxPoints <= 0) {
		return apperror.BadRequest("", "maxPoints is required for points grading")
	}
	return nil
}
