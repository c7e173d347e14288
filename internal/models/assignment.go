package models

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/apperror"
)

// AssignmentType classifies a template.
type AssignmentType string

// Supported assignment types.
const (
	AssignmentTypeHomework AssignmentType = "homework"
	AssignmentTypeQuiz     AssignmentType = "quiz"
	AssignmentTypeProject  AssignmentType = "project"
	AssignmentTypeExam     AssignmentType = "exam"
	AssignmentTypeLab      AssignmentType = "lab"
)

// GradingMode selects between rubric points and a pass/fail verdict.
type GradingMode string

// Supported grading modes.
const (
	GradingModePoints   GradingMode = "points"
	GradingModePassFail GradingMode = "pass_fail"
)

// AssignmentTemplate is a reusable course-level assignment definition.
type AssignmentTemplate struct {
	ID               uint                      `gorm:"primaryKey" json:"id"`
	CourseID         uint                      `gorm:"not null;index" json:"course_id"`
	Title            string                    `gorm:"size:255;not null" json:"title"`
	Description      string                    `gorm:"type:text" json:"description"`
	AssignmentType   AssignmentType            `gorm:"size:32;not null" json:"assignment_type"`
	GradingMode      GradingMode               `gorm:"size:16;not null" json:"grading_mode"`
	MaxPoints        *float64                  `json:"max_points"`
	WeightPercentage *float64                  `json:"weight_percentage"`
	SortOrder        int                       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	Criteria         []GradingCriteriaTemplate `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"criteria,omitempty"`
}

// GradingCriteriaTemplate is one rubric line item of a template.
type GradingCriteriaTemplate struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TemplateID uint      `gorm:"not null;index" json:"template_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	MaxPoints  float64   `gorm:"not null" json:"max_points"`
	SortOrder  int       `gorm:"not null" json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AssignmentStatus is the lifecycle state of a published assignment.
type AssignmentStatus string

// Assignment lifecycle states.
const (
	AssignmentStatusDraft     AssignmentStatus = "draft"
	AssignmentStatusScheduled AssignmentStatus = "scheduled"
	AssignmentStatusPublished AssignmentStatus = "published"
	AssignmentStatusClosed    AssignmentStatus = "closed"
)

// AssignmentAction drives AssignmentStatus transitions.
type AssignmentAction string

// Assignment lifecycle actions.
const (
	AssignmentActionSchedule AssignmentAction = "schedule"
	AssignmentActionPublish  AssignmentAction = "publish"
	AssignmentActionClose    AssignmentAction = "close"
	AssignmentActionToggle   AssignmentAction = "toggle"
)

// Transition applies action to the current status.
func (s AssignmentStatus) Transition(action AssignmentAction) (AssignmentStatus, error) {
	if s == AssignmentStatusClosed {
		return s, apperror.InvalidState(apperror.CodeInvalidTransition, "assignment is closed")
	}

	switch action {
	case AssignmentActionSchedule:
		if s == AssignmentStatusDraft {
			return AssignmentStatusScheduled, nil
		}
	case AssignmentActionPublish:
		if s == AssignmentStatusDraft || s == AssignmentStatusScheduled {
			return AssignmentStatusPublished, nil
		}
	case AssignmentActionClose:
		if s == AssignmentStatusPublished {
			return AssignmentStatusClosed, nil
		}
	case AssignmentActionToggle:
		switch s {
		case AssignmentStatusDraft, AssignmentStatusScheduled, AssignmentStatusPublished:
			return AssignmentStatusClosed, nil
		}
	}

	return s, apperror.InvalidState(apperror.CodeInvalidTransition, "cannot "+string(action)+" a "+string(s)+" assignment")
}

// PublishedAssignment is an independent snapshot of a template activated for one instance.
type PublishedAssignment struct {
	ID                 uint                       `gorm:"primaryKey" json:"id"`
	InstanceID         uint                       `gorm:"not null;index" json:"instance_id"`
	TemplateID         uint                       `gorm:"not null;index" json:"template_id"`
	Title              string                     `gorm:"size:255;not null" json:"title"`
	Description        string                     `gorm:"type:text" json:"description"`
	AssignmentType     AssignmentType             `gorm:"size:32;not null" json:"assignment_type"`
	GradingMode        GradingMode                `gorm:"size:16;not null" json:"grading_mode"`
	MaxPoints          *float64                   `json:"max_points"`
	WeightPercentage   *float64                   `json:"weight_percentage"`
	SortOrder          int                        `gorm:"not null;default:0" json:"sort_order"`
	PublishAt          *time.Time                 `json:"publish_at"`
	Deadline           time.Time                  `gorm:"not null;index" json:"deadline"`
	LateDeadline       *time.Time                 `json:"late_deadline"`
	LatePenaltyPercent *float64                   `json:"late_penalty_percent"`
	AutoPublish        bool                       `gorm:"not null;default:false" json:"auto_publish"`
	Status             AssignmentStatus           `gorm:"size:16;not null;index" json:"status"`
	PublishedAt        *time.Time                 `json:"published_at"`
	ClosedAt           *time.Time                 `json:"closed_at"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
	Criteria           []PublishedGradingCriteria `gorm:"foreignKey:PublishedAssignmentID;constraint:OnDelete:CASCADE" json:"criteria,omitempty"`
}

// PublishedGradingCriteria is the snapshot of one rubric line item.
type PublishedGradingCriteria struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	PublishedAssignmentID uint      `gorm:"not null;index" json:"published_assignment_id"`
	Name                  string    `gorm:"size:255;not null" json:"name"`
	MaxPoints             float64   `gorm:"not null" json:"max_points"`
	SortOrder             int       `gorm:"not null" json:"sort_order"`
	CreatedAt             time.Time `json:"created_at"`
}

// IsPastDeadline reports whether reference is strictly after the primary deadline.
func (a PublishedAssignment) IsPastDeadline(reference time.Time) bool {
	return reference.After(a.Deadline)
}

// IsPastLateDeadline reports whether the late window, when set, has ended.
func (a PublishedAssignment) IsPastLateDeadline(reference time.Time) bool {
	return a.LateDeadline != nil && reference.After(*a.LateDeadline)
}

// PenaltyPercent returns the configured late penalty or 0.
func (a PublishedAssignment) PenaltyPercent() float64 {
	if a.LatePenaltyPercent == nil {
		return 0
	}
	return *a.LatePenaltyPercent
}

// AcceptsWork returns nil when submissions may be mutated.
func (a PublishedAssignment) AcceptsWork() error {
	switch a.Status {
	case AssignmentStatusPublished:
		return nil
	case AssignmentStatusClosed:
		return apperror.Conflict(apperror.CodeAssignmentClosed, "assignment is closed")
	default:
		return apperror.Conflict(apperror.CodeAssignmentNotPublished, "assignment is not published yet")
	}
}
