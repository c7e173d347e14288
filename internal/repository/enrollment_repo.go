package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	InstanceID uint
	Status     *models.EnrollmentStatus
}

// InstanceLock exposes the reads and writes allowed while an instance row is locked.
// Every call runs on the locking transaction.
type InstanceLock interface {
	Instance() models.CourseInstance
	FindEnrollment(ctx context.Context, studentID uint) (models.Enrollment, error)
	CountEnrolled(ctx context.Context) (int64, error)
	SaveEnrollment(ctx context.Context, enrollment *models.Enrollment) error
}

// EnrollmentRepository persists enrollments.
type EnrollmentRepository interface {
	// WithInstanceLock runs fn in a transaction holding a row lock on the instance, so
	// the capacity check and the write it guards commit together.
	WithInstanceLock(ctx context.Context, instanceID uint, fn func(lock InstanceLock) error) error
	GetByID(ctx context.Context, id uint) (models.Enrollment, error)
	GetByInstanceAndStudent(ctx context.Context, instanceID, studentID uint) (models.Enrollment, error)
	List(ctx context.Context, filter EnrollmentFilter) ([]models.Enrollment, error)
	CountEnrolled(ctx context.Context, instanceID uint) (int64, error)
	UpdateStatus(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus) error
	UpdateFinalGrade(ctx context.Context, id uint, finalGrade *float64) error
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

type instanceLock struct {
	tx       *gorm.DB
	instance models.CourseInstance
}

func (l *instanceLock) Instance() models.CourseInstance {
	return l.instance
}

func (l *instanceLock) FindEnrollment(ctx context.Context, studentID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := l.tx.WithContext(ctx).
		Where("instance_id = ? AND student_id = ?", l.instance.ID, studentID).
		First(&enrollment).Error
	return enrollment, err
}

func (l *instanceLock) CountEnrolled(ctx context.Context) (int64, error) {
	return countEnrolled(l.tx.WithContext(ctx), l.instance.ID)
}

func (l *instanceLock) SaveEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.InstanceID = l.instance.ID
	return l.tx.WithContext(ctx).Save(enrollment).Error
}

// WithInstanceLock issues SELECT ... FOR UPDATE on PostgreSQL. SQLite ignores the
// locking clause but serialises writers at the database level.
func (r *enrollmentRepository) WithInstanceLock(ctx context.Context, instanceID uint, fn func(lock InstanceLock) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var instance models.CourseInstance
		if err := lockInstance(tx, &instance, instanceID).Error; err != nil {
			return err
		}
		return fn(&instanceLock{tx: tx, instance: instance})
	})
}

func lockInstance(tx *gorm.DB, instance *models.CourseInstance, instanceID uint) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(instance, instanceID)
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).First(&enrollment, id).Error; err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) GetByInstanceAndStudent(ctx context.Context, instanceID, studentID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("instance_id = ? AND student_id = ?", instanceID, studentID).
		First(&enrollment).Error; err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) List(ctx context.Context, filter EnrollmentFilter) ([]models.Enrollment, error) {
	query := r.db.WithContext(ctx).Where("instance_id = ?", filter.InstanceID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var enrollments []models.Enrollment
	if err := query.Order("enrolled_at ASC").Order("id ASC").Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *enrollmentRepository) CountEnrolled(ctx context.Context, instanceID uint) (int64, error) {
	return countEnrolled(r.db.WithContext(ctx), instanceID)
}

// UpdateStatus writes the lifecycle columns only when the row is still in status from.
func (r *enrollmentRepository) UpdateStatus(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollment.ID, from).
		Updates(map[string]interface{}{
			"status":       enrollment.Status,
			"dropped_at":   enrollment.DroppedAt,
			"completed_at": enrollment.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *enrollmentRepository) UpdateFinalGrade(ctx context.Context, id uint, finalGrade *float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Update("final_grade", finalGrade).Error
}

func countEnrolled(db *gorm.DB, instanceID uint) (int64, error) {
	var count int64
	err := db.Model(&models.Enrollment{}).
		Where("instance_id = ? AND status = ?", instanceID, models.EnrollmentStatusEnrolled).
		Count(&count).Error
	return count, err
}
