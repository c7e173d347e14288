package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// ErrReorderMismatch is returned when a reorder id set differs from the stored criteria.
var ErrReorderMismatch = errors.New("criteria id set does not match")

// TemplateRepository persists assignment templates and their rubric criteria.
type TemplateRepository interface {
	Create(ctx context.Context, template *models.AssignmentTemplate) error
	GetByID(ctx context.Context, id uint) (models.AssignmentTemplate, error)
	Update(ctx context.Context, template *models.AssignmentTemplate) error
	ListCriteria(ctx context.Context, templateID uint) ([]models.GradingCriteriaTemplate, error)
	GetCriteria(ctx context.Context, id uint) (models.GradingCriteriaTemplate, error)
	AppendCriteria(ctx context.Context, criteria *models.GradingCriteriaTemplate) error
	UpdateCriteria(ctx context.Context, criteria *models.GradingCriteriaTemplate) error
	DeleteCriteria(ctx context.Context, id uint) error
	ReorderCriteria(ctx context.Context, templateID uint, orderedIDs []uint) ([]models.GradingCriteriaTemplate, error)
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository instantiates the template repository.
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func orderedCriteria(tx *gorm.DB) *gorm.DB {
	return tx.Order("sort_order ASC").Order("id ASC")
}

func (r *templateRepository) Create(ctx context.Context, template *models.AssignmentTemplate) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(template).Error
}

func (r *templateRepository) GetByID(ctx context.Context, id uint) (models.AssignmentTemplate, error) {
	var template models.AssignmentTemplate
	if err := r.db.WithContext(ctx).Preload("Criteria", orderedCriteria).First(&template, id).Error; err != nil {
		return models.AssignmentTemplate{}, err
	}
	return template, nil
}

func (r *templateRepository) Update(ctx context.Context, template *models.AssignmentTemplate) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(template).Error
}

func (r *templateRepository) ListCriteria(ctx context.Context, templateID uint) ([]models.GradingCriteriaTemplate, error) {
	var criteria []models.GradingCriteriaTemplate
	if err := orderedCriteria(r.db.WithContext(ctx).Where("template_id = ?", templateID)).Find(&criteria).Error; err != nil {
		return nil, err
	}
	return criteria, nil
}

func (r *templateRepository) GetCriteria(ctx context.Context, id uint) (models.GradingCriteriaTemplate, error) {
	var criteria models.GradingCriteriaTemplate
	if err := r.db.WithContext(ctx).First(&criteria, id).Error; err != nil {
		return models.GradingCriteriaTemplate{}, err
	}
	return criteria, nil
}

// AppendCriteria places the new row after the current last one.
func (r *templateRepository) AppendCriteria(ctx context.Context, criteria *models.GradingCriteriaTemplate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.GradingCriteriaTemplate{}).
			Where("template_id = ?", criteria.TemplateID).
			Count(&count).Error; err != nil {
			return err
		}
		criteria.SortOrder = int(count)
		return tx.Create(criteria).Error
	})
}

func (r *templateRepository) UpdateCriteria(ctx context.Context, criteria *models.GradingCriteriaTemplate) error {
	return r.db.WithContext(ctx).Save(criteria).Error
}

// DeleteCriteria removes a row and closes the gap it leaves in sort order.
func (r *templateRepository) DeleteCriteria(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var criteria models.GradingCriteriaTemplate
		if err := tx.First(&criteria, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&criteria).Error; err != nil {
			return err
		}

		var remaining []models.GradingCriteriaTemplate
		if err := orderedCriteria(tx.Where("template_id = ?", criteria.TemplateID)).Find(&remaining).Error; err != nil {
			return err
		}
		ids := make([]uint, 0, len(remaining))
		for _, row := range remaining {
			ids = append(ids, row.ID)
		}
		return writeSortOrder(tx, ids)
	})
}

func (r *templateRepository) ReorderCriteria(ctx context.Context, templateID uint, orderedIDs []uint) ([]models.GradingCriteriaTemplate, error) {
	var reordered []models.GradingCriteriaTemplate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.GradingCriteriaTemplate
		if err := tx.Where("template_id = ?", templateID).Find(&existing).Error; err != nil {
			return err
		}
		if !sameIDSet(existing, orderedIDs) {
			return ErrReorderMismatch
		}
		if err := writeSortOrder(tx, orderedIDs); err != nil {
			return err
		}
		return orderedCriteria(tx.Where("template_id = ?", templateID)).Find(&reordered).Error
	})
	if err != nil {
		return nil, err
	}
	return reordered, nil
}

func writeSortOrder(tx *gorm.DB, ids []uint) error {
	for position, id := range ids {
		if err := tx.Model(&models.GradingCriteriaTemplate{}).
			Where("id = ?", id).
			Update("sort_order", position).Error; err != nil {
			return err
		}
	}
	return nil
}

func sameIDSet(existing []models.GradingCriteriaTemplate, ids []uint) bool {
	if len(existing) != len(ids) {
		return false
	}
	remaining := make(map[uint]struct{}, len(existing))
	for _, row := range existing {
		remaining[row.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := remaining[id]; !ok {
			return false
		}
		delete(remaining, id)
	}
	return len(remaining) == 0
}
