package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// CourseRepository is the read-only course, instance and student lookup.
type CourseRepository interface {
	GetCourse(ctx context.Context, id uint) (models.Course, error)
	GetInstance(ctx context.Context, id uint) (models.CourseInstance, error)
	GetStudent(ctx context.Context, id uint) (models.Student, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed lookup.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetCourse(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) GetInstance(ctx context.Context, id uint) (models.CourseInstance, error) {
	var instance models.CourseInstance
	if err := r.db.WithContext(ctx).First(&instance, id).Error; err != nil {
		return models.CourseInstance{}, err
	}
	return instance, nil
}

func (r *courseRepository) GetStudent(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}
	return student, nil
}
