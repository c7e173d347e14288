package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	InstanceID   *uint
	Status       *models.SubmissionStatus
}

// SubmissionRepository defines data operations for submissions and their rubric grades.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission, from models.SubmissionStatus) error
	ReplaceGrades(ctx context.Context, submission *models.Submission, from models.SubmissionStatus, grades []models.SubmissionGrade) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Assignment.Criteria", orderedCriteria).
		Preload("Grades", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("criteria_id ASC")
		})
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("submissions.published_assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("submissions.student_id = ?", *filter.StudentID)
	}

	if filter.InstanceID != nil {
		query = query.Where("submissions.published_assignment_id IN (?)",
			r.db.Model(&models.PublishedAssignment{}).Select("id").Where("instance_id = ?", *filter.InstanceID))
	}

	if filter.Status != nil {
		query = query.Where("submissions.status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("submissions.created_at DESC").Order("submissions.id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("published_assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(submission).Error
}

// Update writes the submission only while the stored row is still in status from.
func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission, from models.SubmissionStatus) error {
	return updateSubmission(r.db.WithContext(ctx), submission, from)
}

// ReplaceGrades swaps the rubric rows and saves the submission totals atomically. Nothing is
// written when the row left status from after it was read.
func (r *submissionRepository) ReplaceGrades(ctx context.Context, submission *models.Submission, from models.SubmissionStatus, grades []models.SubmissionGrade) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateSubmission(tx, submission, from); err != nil {
			return err
		}

		if err := tx.Where("submission_id = ?", submission.ID).Delete(&models.SubmissionGrade{}).Error; err != nil {
			return err
		}

		for i := range grades {
			grades[i].ID = 0
			grades[i].SubmissionID = submission.ID
		}
		if len(grades) > 0 {
			if err := tx.Create(&grades).Error; err != nil {
				return err
			}
		}

		submission.Grades = grades
		return nil
	})
}

func updateSubmission(db *gorm.DB, submission *models.Submission, from models.SubmissionStatus) error {
	result := db.Model(&models.Submission{}).
		Where("id = ? AND status = ?", submission.ID, from).
		Updates(map[string]interface{}{
			"content":              submission.Content,
			"attachments":          submission.Attachments,
			"status":               submission.Status,
			"submitted_at":         submission.SubmittedAt,
			"is_late":              submission.IsLate,
			"graded_at":            submission.GradedAt,
			"graded_by":            submission.GradedBy,
			"total_points":         submission.TotalPoints,
			"late_penalty_applied": submission.LatePenaltyApplied,
			"final_points":         submission.FinalPoints,
			"is_passed":            submission.IsPassed,
			"feedback":             submission.Feedback,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}
