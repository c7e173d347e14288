package dto

import "time"

// GradebookEntry pairs one published assignment with the student's submission, if any.
type GradebookEntry struct {
	Assignment PublishedAssignmentResponse `json:"assignment"`
	Submission *SubmissionResponse         `json:"submission"`
	Percentage *float64                    `json:"percentage"`
}

// GradebookResponse is a student's view of every assignment in an instance.
type GradebookResponse struct {
	InstanceID uint             `json:"instanceId"`
	StudentID  uint             `json:"studentId"`
	Student    *StudentLite     `json:"student,omitempty"`
	Entries    []GradebookEntry `json:"entries"`
	FinalGrade float64          `json:"finalGrade"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GradeDistributionResponse counts graded submissions per band.
type GradeDistributionResponse map[string]int64

// InstanceAnalyticsResponse is the grade distribution for an instance or one assignment.
// GradedSubmissions counts the points-mode grades in the bands, so the bands sum to it.
type InstanceAnalyticsResponse struct {
	InstanceID        uint                      `json:"instanceId"`
	AssignmentID      *uint                     `json:"assignmentId,omitempty"`
	GradeDistribution GradeDistributionResponse `json:"gradeDistribution"`
	AverageGrade      float64                   `json:"averageGrade"`
	TotalSubmissions  int64                     `json:"totalSubmissions"`
	GradedSubmissions int64                     `json:"gradedSubmissions"`
	PassFailGraded    int64                     `json:"passFailGraded"`
	GeneratedAt       time.Time                 `json:"generatedAt"`
	CacheHit          bool                      `json:"cacheHit"`
}
