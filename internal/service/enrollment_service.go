package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/observability"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

// FinalGradeCalculator computes the on-demand weighted grade of a student in an instance.
type FinalGradeCalculator interface {
	FinalGrade(ctx context.Context, instanceID, studentID uint) (dto.FinalGradeResponse, error)
}

// EnrollmentService manages student membership and capacity of course instances.
type EnrollmentService interface {
	Enroll(ctx context.Context, instanceID, studentID uint, actor ActivityActor) (dto.EnrollmentResponse, error)
	BulkEnroll(ctx context.Context, instanceID uint, payload dto.BulkEnrollRequest, actor ActivityActor) (dto.BulkEnrollResponse, error)
	Drop(ctx context.Context, enrollmentID uint, actor ActivityActor) (dto.EnrollmentResponse, error)
	UpdateStatus(ctx context.Context, enrollmentID uint, payload dto.EnrollmentStatusRequest, actor ActivityActor) (dto.EnrollmentResponse, error)
	Get(ctx context.Context, enrollmentID uint) (dto.EnrollmentResponse, error)
	ListByInstance(ctx context.Context, instanceID uint, status *models.EnrollmentStatus) ([]dto.EnrollmentResponse, error)
	RecomputeFinalGrade(ctx context.Context, instanceID, studentID uint) (dto.EnrollmentResponse, error)
}

type enrollmentService struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	grades      FinalGradeCalculator
	validator   *validator.Validate
	activity    ActivityRecorder
	notifier    Notifier
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEnrollmentService builds the enrollment service. grades, activity and notifier may be nil.
func NewEnrollmentService(
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	grades FinalGradeCalculator,
	validate *validator.Validate,
	activity ActivityRecorder,
	notifier Notifier,
	logger zerolog.Logger,
) EnrollmentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &enrollmentService{
		courses:     courses,
		enrollments: enrollments,
		grades:      grades,
		validator:   validate,
		activity:    activity,
		notifier:    notifier,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-course-api/internal/service/enrollment"),
		now:         time.Now,
	}
}

// Enroll re-checks enrollmentOpen, the existing row and capacity while holding the
// instance lock, then inserts a row or flips a dropped one back to enrolled.
func (s *enrollmentService) Enroll(ctx context.Context, instanceID, studentID uint, actor ActivityActor) (dto.EnrollmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "enrollments.enroll", trace.WithAttributes(
		attribute.Int("enrollment.instance_id", int(instanceID)),
		attribute.Int("enrollment.student_id", int(studentID)),
	))
	defer span.End()

	if _, err := s.courses.GetStudent(ctx, studentID); err != nil {
		err = notFoundAs(err, "student")
		s.countOutcome(err)
		failSpan(span, err)
		return dto.EnrollmentResponse{}, err
	}

	var (
		enrollment models.Enrollment
		reactivate bool
	)
	err := s.enrollments.WithInstanceLock(ctx, instanceID, func(lock repository.InstanceLock) error {
		instance := lock.Instance()
		if !instance.EnrollmentOpen {
			return apperror.BadRequest(apperror.CodeEnrollmentClosed, "enrollment is closed for this instance")
		}

		existing, err := lock.FindEnrollment(ctx, studentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		next, err := existing.Status.Transition(models.EnrollmentActionEnroll)
		if err != nil {
			return err
		}

		enrolled, err := lock.CountEnrolled(ctx)
		if err != nil {
			return err
		}
		if !instance.HasCapacity(enrolled) {
			return apperror.BadRequest(apperror.CodeCapacityExceeded, "instance has reached its enrollment limit")
		}

		reactivate = existing.ID != 0
		existing.StudentID = studentID
		existing.Status = next
		existing.EnrolledAt = s.now()
		existing.DroppedAt = nil
		existing.CompletedAt = nil
		if err := lock.SaveEnrollment(ctx, &existing); err != nil {
			return err
		}
		enrollment = existing
		return nil
	})
	if err != nil {
		err = s.classifyEnrollError(err)
		s.countOutcome(err)
		failSpan(span, err)
		return dto.EnrollmentResponse{}, err
	}

	outcome := "enrolled"
	if reactivate {
		outcome = "reenrolled"
	}
	observability.Enrollments().WithLabelValues(outcome).Inc()
	s.logger.Info().
		Uint("enrollment_id", enrollment.ID).
		Uint("instance_id", instanceID).
		Uint("student_id", studentID).
		Bool("reactivated", reactivate).
		Msg("student enrolled")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "enrollment.enroll",
		EntityType: models.EntityEnrollment,
		EntityID:   uintPtr(enrollment.ID),
		Metadata:   map[string]interface{}{"student_id": studentID, "reactivated": reactivate},
	})
	s.notifier.Notify(ctx, Event{
		Type:       EventStudentEnrolled,
		InstanceID: instanceID,
		EntityID:   enrollment.ID,
		StudentID:  uintPtr(studentID),
	})

	return dto.NewEnrollmentResponse(enrollment), nil
}

// BulkEnroll runs every student through Enroll independently. Capacity may run out
// part-way, leaving later students in failed.
func (s *enrollmentService) BulkEnroll(ctx context.Context, instanceID uint, payload dto.BulkEnrollRequest, actor ActivityActor) (dto.BulkEnrollResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BulkEnrollResponse{}, err
	}

	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		return dto.BulkEnrollResponse{}, notFoundAs(err, "course instance")
	}

	result := dto.BulkEnrollResponse{
		Successful: make([]uint, 0, len(payload.StudentIDs)),
		Failed:     make([]dto.BulkEnrollFailure, 0),
	}
	for _, studentID := range payload.StudentIDs {
		if _, err := s.Enroll(ctx, instanceID, studentID, actor); err != nil {
			if apperror.KindOf(err) == apperror.KindInternal {
				s.logger.Error().Err(err).Uint("student_id", studentID).Msg("bulk enrollment attempt failed")
			}
			result.Failed = append(result.Failed, dto.BulkEnrollFailure{
				StudentID: studentID,
				Reason:    failureReason(err),
			})
			continue
		}
		result.Successful = append(result.Successful, studentID)
	}

	s.logger.Info().
		Uint("instance_id", instanceID).
		Int("successful", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Msg("bulk enrollment finished")

	return result, nil
}

func (s *enrollmentService) Drop(ctx context.Context, enrollmentID uint, actor ActivityActor) (dto.EnrollmentResponse, error) {
	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return dto.EnrollmentResponse{}, notFoundAs(err, "enrollment")
	}
	if normalizeRole(actor.Role) == "student" && enrollment.StudentID != actor.ID {
		return dto.EnrollmentResponse{}, apperror.Forbidden("students may only drop their own enrollment")
	}

	return s.apply(ctx, enrollment, models.EnrollmentActionDrop, actor)
}

// UpdateStatus moves an enrollment to dropped or completed. Enrolled is only reachable through Enroll.
func (s *enrollmentService) UpdateStatus(ctx context.Context, enrollmentID uint, payload dto.EnrollmentStatusRequest, actor ActivityActor) (dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	action, ok := models.ActionForStatus(models.EnrollmentStatus(payload.Status))
	if !ok {
		return dto.EnrollmentResponse{}, apperror.InvalidState(apperror.CodeInvalidTransition, "re-enrollment must go through enroll")
	}

	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return dto.EnrollmentResponse{}, notFoundAs(err, "enrollment")
	}

	return s.apply(ctx, enrollment, action, actor)
}

func (s *enrollmentService) Get(ctx context.Context, enrollmentID uint) (dto.EnrollmentResponse, error) {
	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return dto.EnrollmentResponse{}, notFoundAs(err, "enrollment")
	}
	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) ListByInstance(ctx context.Context, instanceID uint, status *models.EnrollmentStatus) ([]dto.EnrollmentResponse, error) {
	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		return nil, notFoundAs(err, "course instance")
	}

	enrollments, err := s.enrollments.List(ctx, repository.EnrollmentFilter{InstanceID: instanceID, Status: status})
	if err != nil {
		return nil, err
	}
	return dto.NewEnrollmentResponseSlice(enrollments), nil
}

// RecomputeFinalGrade stores the current weighted estimate on the enrollment row.
func (s *enrollmentService) RecomputeFinalGrade(ctx context.Context, instanceID, studentID uint) (dto.EnrollmentResponse, error) {
	enrollment, err := s.enrollments.GetByInstanceAndStudent(ctx, instanceID, studentID)
	if err != nil {
		return dto.EnrollmentResponse{}, notFoundAs(err, "enrollment")
	}

	if err := s.storeFinalGrade(ctx, &enrollment); err != nil {
		return dto.EnrollmentResponse{}, err
	}
	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) apply(ctx context.Context, enrollment models.Enrollment, action models.EnrollmentAction, actor ActivityActor) (dto.EnrollmentResponse, error) {
	from := enrollment.Status
	next, err := from.Transition(action)
	if err != nil {
		return dto.EnrollmentResponse{}, err
	}

	now := s.now()
	enrollment.Status = next
	switch next {
	case models.EnrollmentStatusDropped:
		enrollment.DroppedAt = &now
	case models.EnrollmentStatusCompleted:
		enrollment.CompletedAt = &now
	}

	if err := s.enrollments.UpdateStatus(ctx, &enrollment, from); err != nil {
		return dto.EnrollmentResponse{}, staleAs(err, "enrollment status changed concurrently")
	}

	if next == models.EnrollmentStatusCompleted {
		if err := s.storeFinalGrade(ctx, &enrollment); err != nil {
			s.logger.Warn().Err(err).Uint("enrollment_id", enrollment.ID).Msg("failed to store final grade on completion")
		}
	}

	s.logger.Info().
		Uint("enrollment_id", enrollment.ID).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("enrollment status changed")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "enrollment." + string(action),
		EntityType: models.EntityEnrollment,
		EntityID:   uintPtr(enrollment.ID),
		Metadata:   map[string]interface{}{"from": string(from), "to": string(next)},
	})
	if next == models.EnrollmentStatusDropped {
		s.notifier.Notify(ctx, Event{
			Type:       EventStudentDropped,
			InstanceID: enrollment.InstanceID,
			EntityID:   enrollment.ID,
			StudentID:  uintPtr(enrollment.StudentID),
		})
	}

	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) storeFinalGrade(ctx context.Context, enrollment *models.Enrollment) error {
	if s.grades == nil {
		return nil
	}
	estimate, err := s.grades.FinalGrade(ctx, enrollment.InstanceID, enrollment.StudentID)
	if err != nil {
		return err
	}
	grade := estimate.FinalGrade
	if err := s.enrollments.UpdateFinalGrade(ctx, enrollment.ID, &grade); err != nil {
		return err
	}
	enrollment.FinalGrade = &grade
	return nil
}

func (s *enrollmentService) classifyEnrollError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.NotFound("course instance")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperror.Conflict(apperror.CodeAlreadyEnrolled, "student is already enrolled")
	default:
		return err
	}
}

func (s *enrollmentService) countOutcome(err error) {
	label := apperror.CodeOf(err)
	if label == "" {
		label = string(apperror.KindOf(err))
	}
	observability.Enrollments().WithLabelValues(label).Inc()
}

// failureReason is the per-student reason reported by bulk operations.
func failureReason(err error) string {
	if code := apperror.CodeOf(err); code != "" {
		return code
	}
	return apperror.MessageOf(err)
}
