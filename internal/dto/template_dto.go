package dto

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// TemplateCreateRequest describes a new assignment template.
type TemplateCreateRequest struct {
	Title            string   `json:"title" validate:"required,min=3,max=255"`
	Description      string   `json:"description"`
	AssignmentType   string   `json:"assignmentType" validate:"required,oneof=homework quiz project exam lab"`
	GradingMode      string   `json:"gradingMode" validate:"required,oneof=points pass_fail"`
	MaxPoints        *float64 `json:"maxPoints" validate:"omitempty,gt=0"`
	WeightPercentage *float64 `json:"weightPercentage" validate:"omitempty,gte=0,lte=100"`
	SortOrder        int      `json:"sortOrder" validate:"gte=0"`
}

// TemplateUpdateRequest patches a template. Published snapshots are unaffected.
type TemplateUpdateRequest struct {
	Title            *string  `json:"title" validate:"omitempty,min=3,max=255"`
	Description      *string  `json:"description"`
	AssignmentType   *string  `json:"assignmentType" validate:"omitempty,oneof=homework quiz project exam lab"`
	GradingMode      *string  `json:"gradingMode" validate:"omitempty,oneof=points pass_fail"`
	MaxPoints        *float64 `json:"maxPoints" validate:"omitempty,gt=0"`
	WeightPercentage *float64 `json:"weightPercentage" validate:"omitempty,gte=0,lte=100"`
	SortOrder        *int     `json:"sortOrder" validate:"omitempty,gte=0"`
}

// CriteriaCreateRequest adds a rubric line item.
type CriteriaCreateRequest struct {
	Name      string  `json:"name" validate:"required,min=1,max=255"`
	MaxPoints float64 `json:"maxPoints" validate:"gt=0"`
}

// CriteriaUpdateRequest edits a rubric line item.
type CriteriaUpdateRequest struct {
	Name      *string  `json:"name" validate:"omitempty,min=1,max=255"`
	MaxPoints *float64 `json:"maxPoints" validate:"omitempty,gt=0"`
}

// CriteriaReorderRequest carries the complete new order of a template's criteria.
type CriteriaReorderRequest struct {
	OrderedIDs []uint `json:"orderedIds" validate:"required,dive,gt=0"`
}

// CriteriaResponse serializes a template rubric row.
type CriteriaResponse struct {
	ID         uint    `json:"id"`
	TemplateID uint    `json:"templateId"`
	Name       string  `json:"name"`
	MaxPoints  float64 `json:"maxPoints"`
	SortOrder  int     `json:"sortOrder"`
}

// CriteriaValidationResponse is the advisory rubric-sum check.
type CriteriaValidationResponse struct {
	IsValid       bool     `json:"isValid"`
	SumOfCriteria float64  `json:"sumOfCriteria"`
	MaxPoints     *float64 `json:"maxPoints"`
	Delta         float64  `json:"delta"`
}

// TemplateResponse serializes a template with its rubric.
type TemplateResponse struct {
	ID               uint               `json:"id"`
	CourseID         uint               `json:"courseId"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	AssignmentType   string             `json:"assignmentType"`
	GradingMode      string             `json:"gradingMode"`
	MaxPoints        *float64           `json:"maxPoints"`
	WeightPercentage *float64           `json:"weightPercentage"`
	SortOrder        int                `json:"sortOrder"`
	Criteria         []CriteriaResponse `json:"criteria"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// NewCriteriaResponse converts a rubric row into a DTO.
func NewCriteriaResponse(model models.GradingCriteriaTemplate) CriteriaResponse {
	return CriteriaResponse{
		ID:         model.ID,
		TemplateID: model.TemplateID,
		Name:       model.Name,
		MaxPoints:  model.MaxPoints,
		SortOrder:  model.SortOrder,
	}
}

// NewCriteriaResponseSlice converts rubric rows into DTOs.
func NewCriteriaResponseSlice(rows []models.GradingCriteriaTemplate) []CriteriaResponse {
	responses := make([]CriteriaResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, NewCriteriaResponse(row))
	}
	return responses
}

// NewTemplateResponse converts a template into a DTO.
func NewTemplateResponse(model models.AssignmentTemplate) TemplateResponse {
	return TemplateResponse{
		ID:               model.ID,
		CourseID:         model.CourseID,
		Title:            model.Title,
		Description:      model.Description,
		AssignmentType:   string(model.AssignmentType),
		GradingMode:      string(model.GradingMode),
		MaxPoints:        model.MaxPoints,
		WeightPercentage: model.WeightPercentage,
		SortOrder:        model.SortOrder,
		Criteria:         NewCriteriaResponseSlice(model.Criteria),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
