package models

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/apperror"
)

// EnrollmentStatus is the state of a student within an instance.
type EnrollmentStatus string

// Enrollment states.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// EnrollmentAction drives EnrollmentStatus transitions.
type EnrollmentAction string

// Enrollment actions. Only Enroll may (re)activate a row.
const (
	EnrollmentActionEnroll   EnrollmentAction = "enroll"
	EnrollmentActionDrop     EnrollmentAction = "drop"
	EnrollmentActionComplete EnrollmentAction = "complete"
)

// Transition applies action to the current status. The zero status means no row exists yet.
func (s EnrollmentStatus) Transition(action EnrollmentAction) (EnrollmentStatus, error) {
	if s == EnrollmentStatusCompleted {
		if action == EnrollmentActionEnroll {
			return s, apperror.BadRequest(apperror.CodeEnrollmentCompleted, "student already completed this instance")
		}
		return s, apperror.InvalidState(apperror.CodeInvalidTransition, "completed enrollments are final")
	}

	switch action {
	case EnrollmentActionEnroll:
		switch s {
		case "", EnrollmentStatusDropped:
			return EnrollmentStatusEnrolled, nil
		case EnrollmentStatusEnrolled:
			return s, apperror.Conflict(apperror.CodeAlreadyEnrolled, "student is already enrolled")
		}
	case EnrollmentActionDrop:
		if s == EnrollmentStatusEnrolled {
			return EnrollmentStatusDropped, nil
		}
	case EnrollmentActionComplete:
		if s == EnrollmentStatusEnrolled {
			return EnrollmentStatusCompleted, nil
		}
	}

	from := string(s)
	if from == "" {
		from = "missing"
	}
	return s, apperror.InvalidState(apperror.CodeInvalidTransition, "cannot "+string(action)+" a "+from+" enrollment")
}

// ActionForStatus maps a requested target status onto the action that reaches it.
// Enrolled is not reachable through a generic status update.
func ActionForStatus(target EnrollmentStatus) (EnrollmentAction, bool) {
	switch target {
	case EnrollmentStatusDropped:
		return EnrollmentActionDrop, true
	case EnrollmentStatusCompleted:
		return EnrollmentActionComplete, true
	default:
		return "", false
	}
}

// Enrollment is a student's membership in one course instance.
type Enrollment struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	InstanceID  uint             `gorm:"not null;uniqueIndex:idx_enrollment_instance_student;index:idx_enrollment_instance_status,priority:1" json:"instance_id"`
	StudentID   uint             `gorm:"not null;uniqueIndex:idx_enrollment_instance_student" json:"student_id"`
	Status      EnrollmentStatus `gorm:"size:16;not null;index:idx_enrollment_instance_status,priority:2" json:"status"`
	EnrolledAt  time.Time        `gorm:"not null" json:"enrolled_at"`
	DroppedAt   *time.Time       `json:"dropped_at"`
	CompletedAt *time.Time       `json:"completed_at"`
	FinalGrade  *float64         `json:"final_grade"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
