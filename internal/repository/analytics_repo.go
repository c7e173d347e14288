package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// AnalyticsScope selects the submissions an aggregate runs over.
type AnalyticsScope struct {
	InstanceID   uint
	AssignmentID *uint
}

// AnalyticsRepository supplies data for per-instance grade analytics.
type AnalyticsRepository interface {
	ListGradedSubmissions(ctx context.Context, scope AnalyticsScope) ([]models.Submission, error)
	CountSubmitted(ctx context.Context, scope AnalyticsScope) (int64, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository constructs the analytics repository.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) scoped(ctx context.Context, scope AnalyticsScope) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Joins("JOIN published_assignments ON published_assignments.id = submissions.published_assignment_id").
		Where("published_assignments.instance_id = ?", scope.InstanceID)
	if scope.AssignmentID != nil {
		query = query.Where("submissions.published_assignment_id = ?", *scope.AssignmentID)
	}
	return query
}

func (r *analyticsRepository) ListGradedSubmissions(ctx context.Context, scope AnalyticsScope) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.scoped(ctx, scope).
		Preload("Assignment").
		Where("submissions.status = ?", models.SubmissionStatusGraded).
		Order("submissions.id ASC").
		Find(&submissions).Error
	return submissions, err
}

// CountSubmitted counts every submission that left the draft state.
func (r *analyticsRepository) CountSubmitted(ctx context.Context, scope AnalyticsScope) (int64, error) {
	var count int64
	err := r.scoped(ctx, scope).
		Where("submissions.status <> ?", models.SubmissionStatusDraft).
		Count(&count).Error
	return count, err
}
