package dto

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// SaveDraftRequest upserts a student's draft.
type SaveDraftRequest struct {
	Content     string   `json:"content" validate:"max=200000"`
	Attachments []string `json:"attachments" validate:"omitempty,max=20,dive,url"`
}

// CriteriaGradeInput is the award for one rubric criterion.
type CriteriaGradeInput struct {
	CriteriaID    uint     `json:"criteriaId" validate:"required,gt=0"`
	PointsAwarded *float64 `json:"pointsAwarded" validate:"required"`
	Feedback      *string  `json:"feedback" validate:"omitempty,max=5000"`
}

// GradeSubmissionRequest grades a points-mode submission.
type GradeSubmissionRequest struct {
	CriteriaGrades  []CriteriaGradeInput `json:"criteriaGrades" validate:"dive"`
	OverallFeedback *string              `json:"overallFeedback" validate:"omitempty,max=10000"`
}

// GradePassFailRequest grades a pass/fail submission.
type GradePassFailRequest struct {
	IsPassed *bool  `json:"isPassed" validate:"required"`
	Feedback string `json:"feedback" validate:"max=10000"`
}

// SubmissionGradeResponse serializes one rubric award.
type SubmissionGradeResponse struct {
	CriteriaID    uint    `json:"criteriaId"`
	PointsAwarded float64 `json:"pointsAwarded"`
	Feedback      *string `json:"feedback"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                    uint                      `json:"id"`
	PublishedAssignmentID uint                      `json:"publishedAssignmentId"`
	StudentID             uint                      `json:"studentId"`
	Content               string                    `json:"content"`
	Attachments           []string                  `json:"attachments"`
	Status                string                    `json:"status"`
	SubmittedAt           *time.Time                `json:"submittedAt"`
	GradedAt              *time.Time                `json:"gradedAt"`
	GradedBy              *uint                     `json:"gradedBy"`
	TotalPoints           *float64                  `json:"totalPoints"`
	LatePenaltyApplied    *float64                  `json:"latePenaltyApplied"`
	FinalPoints           *float64                  `json:"finalPoints"`
	IsLate                bool                      `json:"isLate"`
	IsPassed              *bool                     `json:"isPassed"`
	Feedback              string                    `json:"feedback"`
	Grades                []SubmissionGradeResponse `json:"grades"`
	CreatedAt             time.Time                 `json:"createdAt"`
	UpdatedAt             time.Time                 `json:"updatedAt"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	attachments := []string(model.Attachments)
	if attachments == nil {
		attachments = []string{}
	}

	grades := make([]SubmissionGradeResponse, 0, len(model.Grades))
	for _, grade := range model.Grades {
		grades = append(grades, SubmissionGradeResponse{
			CriteriaID:    grade.CriteriaID,
			PointsAwarded: grade.PointsAwarded,
			Feedback:      grade.Feedback,
		})
	}

	return SubmissionResponse{
		ID:                    model.ID,
		PublishedAssignmentID: model.PublishedAssignmentID,
		StudentID:             model.StudentID,
		Content:               model.Content,
		Attachments:           attachments,
		Status:                string(model.Status),
		SubmittedAt:           model.SubmittedAt,
		GradedAt:              model.GradedAt,
		GradedBy:              model.GradedBy,
		TotalPoints:           model.TotalPoints,
		LatePenaltyApplied:    model.LatePenaltyApplied,
		FinalPoints:           model.FinalPoints,
		IsLate:                model.IsLate,
		IsPassed:              model.IsPassed,
		Feedback:              model.Feedback,
		Grades:                grades,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(models []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(models))
	for _, submission := range models {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
