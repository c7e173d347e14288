package dto

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// PublishAssignmentRequest snapshots a template into an instance with a schedule.
type PublishAssignmentRequest struct {
	TemplateID         uint       `json:"templateId" validate:"required,gt=0"`
	Deadline           *time.Time `json:"deadline" validate:"required"`
	PublishAt          *time.Time `json:"publishAt"`
	LateDeadline       *time.Time `json:"lateDeadline"`
	LatePenaltyPercent *float64   `json:"latePenaltyPercent" validate:"omitempty,gte=0,lte=100"`
	AutoPublish        *bool      `json:"autoPublish"`
}

// AssignmentTransitionRequest names a lifecycle action for a published assignment.
type AssignmentTransitionRequest struct {
	Action string `json:"action" validate:"required,oneof=schedule publish close toggle"`
}

// PublishedCriteriaResponse serializes a snapshot rubric row.
type PublishedCriteriaResponse struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	MaxPoints float64 `json:"maxPoints"`
	SortOrder int     `json:"sortOrder"`
}

// PublishedAssignmentResponse is the serialized published assignment.
type PublishedAssignmentResponse struct {
	ID                 uint                        `json:"id"`
	InstanceID         uint                        `json:"instanceId"`
	TemplateID         uint                        `json:"templateId"`
	Title              string                      `json:"title"`
	Description        string                      `json:"description"`
	AssignmentType     string                      `json:"assignmentType"`
	GradingMode        string                      `json:"gradingMode"`
	MaxPoints          *float64                    `json:"maxPoints"`
	WeightPercentage   *float64                    `json:"weightPercentage"`
	SortOrder          int                         `json:"sortOrder"`
	PublishAt          *time.Time                  `json:"publishAt"`
	Deadline           time.Time                   `json:"deadline"`
	LateDeadline       *time.Time                  `json:"lateDeadline"`
	LatePenaltyPercent *float64                    `json:"latePenaltyPercent"`
	AutoPublish        bool                        `json:"autoPublish"`
	Status             string                      `json:"status"`
	PublishedAt        *time.Time                  `json:"publishedAt"`
	ClosedAt           *time.Time                  `json:"closedAt"`
	Criteria           []PublishedCriteriaResponse `json:"criteria"`
	CreatedAt          time.Time                   `json:"createdAt"`
	UpdatedAt          time.Time                   `json:"updatedAt"`
}

// AutoPublishResponse lists the assignments moved to published by a sweep.
type AutoPublishResponse struct {
	Published []uint    `json:"published"`
	RanAt     time.Time `json:"ranAt"`
}

// NewPublishedAssignmentResponse converts a model into a DTO.
func NewPublishedAssignmentResponse(model models.PublishedAssignment) PublishedAssignmentResponse {
	criteria := make([]PublishedCriteriaResponse, 0, len(model.Criteria))
	for _, row := range model.Criteria {
		criteria = append(criteria, PublishedCriteriaResponse{
			ID:        row.ID,
			Name:      row.Name,
			MaxPoints: row.MaxPoints,
			SortOrder: row.SortOrder,
		})
	}

	return PublishedAssignmentResponse{
		ID:                 model.ID,
		InstanceID:         model.InstanceID,
		TemplateID:         model.TemplateID,
		Title:              model.Title,
		Description:        model.Description,
		AssignmentType:     string(model.AssignmentType),
		GradingMode:        string(model.GradingMode),
		MaxPoints:          model.MaxPoints,
		WeightPercentage:   model.WeightPercentage,
		SortOrder:          model.SortOrder,
		PublishAt:          model.PublishAt,
		Deadline:           model.Deadline,
		LateDeadline:       model.LateDeadline,
		LatePenaltyPercent: model.LatePenaltyPercent,
		AutoPublish:        model.AutoPublish,
		Status:             string(model.Status),
		PublishedAt:        model.PublishedAt,
		ClosedAt:           model.ClosedAt,
		Criteria:           criteria,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

// NewPublishedAssignmentResponseSlice converts a slice of models into DTOs.
func NewPublishedAssignmentResponseSlice(assignments []models.PublishedAssignment) []PublishedAssignmentResponse {
	responses := make([]PublishedAssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewPublishedAssignmentResponse(assignment))
	}
	return responses
}
