package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-course-api/internal/apperror"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

// Submission lifecycle states.
const (
	SubmissionStatusDraft     SubmissionStatus = "draft"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusLate      SubmissionStatus = "late"
	SubmissionStatusGraded    SubmissionStatus = "graded"
)

// SubmissionAction drives SubmissionStatus transitions.
type SubmissionAction string

// Submission lifecycle actions. SubmissionActionSubmitLate is chosen by the caller
// once the deadline has passed.
const (
	SubmissionActionSaveDraft  SubmissionAction = "save_draft"
	SubmissionActionSubmit     SubmissionAction = "submit"
	SubmissionActionSubmitLate SubmissionAction = "submit_late"
	SubmissionActionGrade      SubmissionAction = "grade"
)

// Transition applies action to the current status. The zero status means no row exists yet.
func (s SubmissionStatus) Transition(action SubmissionAction) (SubmissionStatus, error) {
	switch action {
	case SubmissionActionSaveDraft:
		if s == "" || s == SubmissionStatusDraft {
			return SubmissionStatusDraft, nil
		}
		return s, apperror.Conflict(apperror.CodeAlreadySubmitted, "submission can no longer be edited")
	case SubmissionActionSubmit, SubmissionActionSubmitLate:
		if s == SubmissionStatusDraft {
			if action == SubmissionActionSubmitLate {
				return SubmissionStatusLate, nil
			}
			return SubmissionStatusSubmitted, nil
		}
		if s == "" {
			return s, apperror.NotFound("draft submission")
		}
		return s, apperror.Conflict(apperror.CodeAlreadySubmitted, "submission was already submitted")
	case SubmissionActionGrade:
		// graded -> graded is a re-grade.
		switch s {
		case SubmissionStatusSubmitted, SubmissionStatusLate, SubmissionStatusGraded:
			return SubmissionStatusGraded, nil
		}
		return s, apperror.InvalidState(apperror.CodeInvalidTransition, "only submitted work can be graded")
	}

	return s, apperror.InvalidState(apperror.CodeInvalidTransition, "unknown submission action "+string(action))
}

// Submission is one student's work on one published assignment.
type Submission struct {
	ID                    uint                        `gorm:"primaryKey" json:"id"`
	PublishedAssignmentID uint                        `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"published_assignment_id"`
	StudentID             uint                        `gorm:"not null;uniqueIndex:idx_submission_assignment_student;index" json:"student_id"`
	Content               string                      `gorm:"type:text" json:"content"`
	Attachments           datatypes.JSONSlice[string] `json:"attachments"`
	Status                SubmissionStatus            `gorm:"size:16;not null;index" json:"status"`
	SubmittedAt           *time.Time                  `json:"submitted_at"`
	GradedAt              *time.Time                  `json:"graded_at"`
	GradedBy              *uint                       `json:"graded_by"`
	TotalPoints           *float64                    `json:"total_points"`
	LatePenaltyApplied    *float64                    `json:"late_penalty_applied"`
	FinalPoints           *float64                    `json:"final_points"`
	IsLate                bool                        `gorm:"not null;default:false" json:"is_late"`
	IsPassed              *bool                       `json:"is_passed"`
	Feedback              string                      `gorm:"type:text" json:"feedback"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
	Grades                []SubmissionGrade           `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"grades,omitempty"`
	Assignment            PublishedAssignment         `gorm:"foreignKey:PublishedAssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// SubmissionGrade is the award for one rubric criterion of a submission.
type SubmissionGrade struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SubmissionID  uint      `gorm:"not null;uniqueIndex:idx_submission_grade_criteria" json:"submission_id"`
	CriteriaID    uint      `gorm:"not null;uniqueIndex:idx_submission_grade_criteria" json:"criteria_id"`
	PointsAwarded float64   `gorm:"not null" json:"points_awarded"`
	Feedback      *string   `gorm:"type:text" json:"feedback"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}
