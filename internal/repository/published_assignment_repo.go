package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// SnapshotBuilder turns a template, read inside the publish transaction, into the
// assignment row to insert. Returning an error aborts the transaction.
type SnapshotBuilder func(template models.AssignmentTemplate) (*models.PublishedAssignment, error)

// PublishedAssignmentRepository persists published assignment snapshots.
type PublishedAssignmentRepository interface {
	Publish(ctx context.Context, templateID uint, build SnapshotBuilder) (models.PublishedAssignment, error)
	GetByID(ctx context.Context, id uint) (models.PublishedAssignment, error)
	ListByInstance(ctx context.Context, instanceID uint, statuses ...models.AssignmentStatus) ([]models.PublishedAssignment, error)
	ListDueForPublish(ctx context.Context, now time.Time) ([]models.PublishedAssignment, error)
	UpdateStatus(ctx context.Context, assignment *models.PublishedAssignment, from models.AssignmentStatus) error
}

// ErrStaleStatus is returned when a conditional status write finds the row already moved on.
var ErrStaleStatus = errors.New("status changed concurrently")

type publishedAssignmentRepository struct {
	db *gorm.DB
}

// NewPublishedAssignmentRepository instantiates the repository.
func NewPublishedAssignmentRepository(db *gorm.DB) PublishedAssignmentRepository {
	return &publishedAssignmentRepository{db: db}
}

// Publish reads the template with its ordered criteria and writes the snapshot plus
// criteria copies in one transaction.
func (r *publishedAssignmentRepository) Publish(ctx context.Context, templateID uint, build SnapshotBuilder) (models.PublishedAssignment, error) {
	var created models.PublishedAssignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.AssignmentTemplate
		if err := tx.Preload("Criteria", orderedCriteria).First(&template, templateID).Error; err != nil {
			return err
		}

		snapshot, err := build(template)
		if err != nil {
			return err
		}

		criteria := snapshot.Criteria
		snapshot.Criteria = nil
		if err := tx.Omit(clause.Associations).Create(snapshot).Error; err != nil {
			return err
		}

		for i := range criteria {
			criteria[i].ID = 0
			criteria[i].PublishedAssignmentID = snapshot.ID
		}
		if len(criteria) > 0 {
			if err := tx.Create(&criteria).Error; err != nil {
				return err
			}
		}

		snapshot.Criteria = criteria
		created = *snapshot
		return nil
	})
	if err != nil {
		return models.PublishedAssignment{}, err
	}

	return created, nil
}

func (r *publishedAssignmentRepository) GetByID(ctx context.Context, id uint) (models.PublishedAssignment, error) {
	var assignment models.PublishedAssignment
	if err := r.db.WithContext(ctx).Preload("Criteria", orderedCriteria).First(&assignment, id).Error; err != nil {
		return models.PublishedAssignment{}, err
	}
	return assignment, nil
}

func (r *publishedAssignmentRepository) ListByInstance(ctx context.Context, instanceID uint, statuses ...models.AssignmentStatus) ([]models.PublishedAssignment, error) {
	query := r.db.WithContext(ctx).
		Preload("Criteria", orderedCriteria).
		Where("instance_id = ?", instanceID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var assignments []models.PublishedAssignment
	if err := query.Order("deadline ASC").Order("sort_order ASC").Order("id ASC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *publishedAssignmentRepository) ListDueForPublish(ctx context.Context, now time.Time) ([]models.PublishedAssignment, error) {
	var assignments []models.PublishedAssignment
	err := r.db.WithContext(ctx).
		Where("status = ?", models.AssignmentStatusScheduled).
		Where("auto_publish = ?", true).
		Where("publish_at IS NOT NULL AND publish_at <= ?", now).
		Order("publish_at ASC").
		Find(&assignments).Error
	return assignments, err
}

// UpdateStatus persists only the lifecycle columns so snapshot fields stay frozen.
// The write is conditional on the row still being in status from.
func (r *publishedAssignmentRepository) UpdateStatus(ctx context.Context, assignment *models.PublishedAssignment, from models.AssignmentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.PublishedAssignment{}).
		Where("id = ? AND status = ?", assignment.ID, from).
		Updates(map[string]interface{}{
			"status":       assignment.Status,
			"published_at": assignment.PublishedAt,
			"closed_at":    assignment.ClosedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}
