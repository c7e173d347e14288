package dto

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// BulkEnrollRequest enrolls many students into one instance.
type BulkEnrollRequest struct {
	StudentIDs []uint `json:"studentIds" validate:"required,min=1,max=500,dive,gt=0"`
}

// EnrollmentStatusRequest moves an enrollment to dropped or completed.
type EnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=enrolled dropped completed"`
}

// EnrollmentResponse serializes an enrollment.
type EnrollmentResponse struct {
	ID          uint       `json:"id"`
	InstanceID  uint       `json:"instanceId"`
	StudentID   uint       `json:"studentId"`
	Status      string     `json:"status"`
	EnrolledAt  time.Time  `json:"enrolledAt"`
	DroppedAt   *time.Time `json:"droppedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	FinalGrade  *float64   `json:"finalGrade"`
}

// BulkEnrollFailure explains why one student could not be enrolled.
type BulkEnrollFailure struct {
	StudentID uint   `json:"studentId"`
	Reason    string `json:"reason"`
}

// BulkEnrollResponse reports the partial outcome of a bulk enrollment.
type BulkEnrollResponse struct {
	Successful []uint              `json:"successful"`
	Failed     []BulkEnrollFailure `json:"failed"`
}

// FinalGradeResponse is the on-demand weighted estimate for one student.
type FinalGradeResponse struct {
	InstanceID   uint    `json:"instanceId"`
	StudentID    uint    `json:"studentId"`
	FinalGrade   float64 `json:"finalGrade"`
	GradedWeight float64 `json:"gradedWeight"`
	GradedCount  int     `json:"gradedCount"`
	IsEstimate   bool    `json:"isEstimate"`
	EnrollmentID *uint   `json:"enrollmentId,omitempty"`
}

// NewEnrollmentResponse converts an enrollment into a DTO.
func NewEnrollmentResponse(model models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:          model.ID,
		InstanceID:  model.InstanceID,
		StudentID:   model.StudentID,
		Status:      string(model.Status),
		EnrolledAt:  model.EnrolledAt,
		DroppedAt:   model.DroppedAt,
		CompletedAt: model.CompletedAt,
		FinalGrade:  model.FinalGrade,
	}
}

// NewEnrollmentResponseSlice converts enrollments into DTOs.
func NewEnrollmentResponseSlice(rows []models.Enrollment) []EnrollmentResponse {
	responses := make([]EnrollmentResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, NewEnrollmentResponse(row))
	}
	return responses
}
