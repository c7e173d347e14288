package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/observability"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

// AssignmentPublisherService snapshots templates into course instances and drives their lifecycle.
type AssignmentPublisherService interface {
	Publish(ctx context.Context, instanceID uint, payload dto.PublishAssignmentRequest, actor ActivityActor) (dto.PublishedAssignmentResponse, error)
	Transition(ctx context.Context, assignmentID uint, action models.AssignmentAction, actor ActivityActor) (dto.PublishedAssignmentResponse, error)
	PublishDue(ctx context.Context) (dto.AutoPublishResponse, error)
	Get(ctx context.Context, assignmentID uint) (dto.PublishedAssignmentResponse, error)
	ListByInstance(ctx context.Context, instanceID uint) ([]dto.PublishedAssignmentResponse, error)
}

type assignmentPublisherService struct {
	courses     repository.CourseRepository
	assignments repository.PublishedAssignmentRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	notifier    Notifier
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewAssignmentPublisherService wires the publisher. activity and notifier may be nil.
func NewAssignmentPublisherService(
	courses repository.CourseRepository,
	assignments repository.PublishedAssignmentRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	notifier Notifier,
	logger zerolog.Logger,
) AssignmentPublisherService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &assignmentPublisherService{
		courses:     courses,
		assignments: assignments,
		validator:   validate,
		activity:    activity,
		notifier:    notifier,
		logger:      logger.With().Str("component", "assignment_publisher_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-course-api/internal/service/assignment_publisher"),
		now:         time.Now,
	}
}

func (s *assignmentPublisherService) Publish(ctx context.Context, instanceID uint, payload dto.PublishAssignmentRequest, actor ActivityActor) (dto.PublishedAssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assignments.publish", trace.WithAttributes(
		attribute.Int("assignment.instance_id", int(instanceID)),
		attribute.Int("assignment.template_id", int(payload.TemplateID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.PublishedAssignmentResponse{}, err
	}

	deadline := *payload.Deadline
	if payload.LateDeadline != nil && payload.LateDeadline.Before(deadline) {
		return dto.PublishedAssignmentResponse{}, apperror.BadRequest("", "lateDeadline must not be before deadline")
	}

	instance, err := s.courses.GetInstance(ctx, instanceID)
	if err != nil {
		err = notFoundAs(err, "course instance")
		failSpan(span, err)
		return dto.PublishedAssignmentResponse{}, err
	}

	now := s.now()
	autoPublish := payload.AutoPublish != nil && *payload.AutoPublish
	status := initialStatus(payload.PublishAt, autoPublish, now)

	created, err := s.assignments.Publish(ctx, payload.TemplateID, func(template models.AssignmentTemplate) (*models.PublishedAssignment, error) {
		if template.CourseID != instance.CourseID {
			return nil, apperror.BadRequest("", "template belongs to a different course")
		}
		return buildSnapshot(template, instanceID, payload, status, now), nil
	})
	if err != nil {
		err = notFoundAs(err, "assignment template")
		failSpan(span, err)
		return dto.PublishedAssignmentResponse{}, err
	}

	observability.AssignmentsPublished().WithLabelValues(string(created.Status)).Inc()
	span.SetAttributes(attribute.String("assignment.status", string(created.Status)))
	s.logger.Info().
		Uint("assignment_id", created.ID).
		Uint("instance_id", instanceID).
		Str("status", string(created.Status)).
		Msg("assignment published from template")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "assignment.publish",
		EntityType: models.EntityPublishedAssignment,
		EntityID:   uintPtr(created.ID),
		Metadata: map[string]interface{}{
			"template_id": created.TemplateID,
			"instance_id": created.InstanceID,
			"status":      string(created.Status),
		},
	})
	if created.Status == models.AssignmentStatusPublished {
		s.notifyPublished(ctx, created)
	}

	return dto.NewPublishedAssignmentResponse(created), nil
}

func (s *assignmentPublisherService) Transition(ctx context.Context, assignmentID uint, action models.AssignmentAction, actor ActivityActor) (dto.PublishedAssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assignments.transition", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
		attribute.String("assignment.action", string(action)),
	))
	defer span.End()

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		err = notFoundAs(err, "assignment")
		failSpan(span, err)
		return dto.PublishedAssignmentResponse{}, err
	}

	from := assignment.Status
	if err := s.apply(ctx, &assignment, action); err != nil {
		observability.AssignmentTransitions().WithLabelValues(string(action), "rejected").Inc()
		failSpan(span, err)
		return dto.PublishedAssignmentResponse{}, err
	}
	observability.AssignmentTransitions().WithLabelValues(string(action), "applied").Inc()

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Str("from", string(from)).
		Str("to", string(assignment.Status)).
		Msg("assignment status changed")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "assignment." + string(action),
		EntityType: models.EntityPublishedAssignment,
		EntityID:   uintPtr(assignment.ID),
		Metadata: map[string]interface{}{
			"from": string(from),
			"to":   string(assignment.Status),
		},
	})

	switch assignment.Status {
	case models.AssignmentStatusPublished:
		s.notifyPublished(ctx, assignment)
	case models.AssignmentStatusClosed:
		s.notifier.Notify(ctx, Event{
			Type:       EventAssignmentClosed,
			InstanceID: assignment.InstanceID,
			EntityID:   assignment.ID,
		})
	}

	return dto.NewPublishedAssignmentResponse(assignment), nil
}

// PublishDue moves every scheduled auto-publish assignment whose publishAt has passed to published.
// Rows changed concurrently by another sweep are skipped.
func (s *assignmentPublisherService) PublishDue(ctx context.Context) (dto.AutoPublishResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assignments.publish_due")
	defer span.End()

	now := s.now()
	due, err := s.assignments.ListDueForPublish(ctx, now)
	if err != nil {
		observability.AutoPublishRuns().WithLabelValues("error").Inc()
		failSpan(span, err)
		return dto.AutoPublishResponse{}, err
	}

	published := make([]uint, 0, len(due))
	for i := range due {
		assignment := due[i]
		if err := s.apply(ctx, &assignment, models.AssignmentActionPublish); err != nil {
			if apperror.KindOf(err) == apperror.KindConflict {
				continue
			}
			observability.AutoPublishRuns().WithLabelValues("error").Inc()
			failSpan(span, err)
			return dto.AutoPublishResponse{Published: published, RanAt: now}, err
		}
		published = append(published, assignment.ID)
		s.notifyPublished(ctx, assignment)
	}

	observability.AutoPublishRuns().WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("assignment.published_count", len(published)))
	if len(published) > 0 {
		s.logger.Info().Int("count", len(published)).Msg("scheduled assignments published")
	}

	return dto.AutoPublishResponse{Published: published, RanAt: now}, nil
}

func (s *assignmentPublisherService) Get(ctx context.Context, assignmentID uint) (dto.PublishedAssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return dto.PublishedAssignmentResponse{}, notFoundAs(err, "assignment")
	}
	return dto.NewPublishedAssignmentResponse(assignment), nil
}

func (s *assignmentPublisherService) ListByInstance(ctx context.Context, instanceID uint) ([]dto.PublishedAssignmentResponse, error) {
	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		return nil, notFoundAs(err, "course instance")
	}

	assignments, err := s.assignments.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return dto.NewPublishedAssignmentResponseSlice(assignments), nil
}

func (s *assignmentPublisherService) apply(ctx context.Context, assignment *models.PublishedAssignment, action models.AssignmentAction) error {
	from := assignment.Status
	next, err := from.Transition(action)
	if err != nil {
		return err
	}

	now := s.now()
	assignment.Status = next
	switch next {
	case models.AssignmentStatusPublished:
		assignment.PublishedAt = &now
	case models.AssignmentStatusClosed:
		assignment.ClosedAt = &now
	}

	if err := s.assignments.UpdateStatus(ctx, assignment, from); err != nil {
		assignment.Status = from
		return staleAs(err, "assignment status changed concurrently")
	}
	return nil
}

func (s *assignmentPublisherService) notifyPublished(ctx context.Context, assignment models.PublishedAssignment) {
	s.notifier.Notify(ctx, Event{
		Type:       EventAssignmentPublished,
		InstanceID: assignment.InstanceID,
		EntityID:   assignment.ID,
		Payload: map[string]interface{}{
			"title":    assignment.Title,
			"deadline": assignment.Deadline,
		},
	})
}

// initialStatus decides where a freshly published snapshot starts.
func initialStatus(publishAt *time.Time, autoPublish bool, now time.Time) models.AssignmentStatus {
	if publishAt == nil || !publishAt.After(now) {
		return models.AssignmentStatusPublished
	}
	if autoPublish {
		return models.AssignmentStatusScheduled
	}
	return models.AssignmentStatusDraft
}

func buildSnapshot(template models.AssignmentTemplate, instanceID uint, payload dto.PublishAssignmentRequest, status models.AssignmentStatus, now time.Time) *models.PublishedAssignment {
	snapshot := &models.PublishedAssignment{
		InstanceID:         instanceID,
		TemplateID:         template.ID,
		Title:              template.Title,
		Description:        template.Description,
		AssignmentType:     template.AssignmentType,
		GradingMode:        template.GradingMode,
		MaxPoints:          copyFloat(template.MaxPoints),
		WeightPercentage:   copyFloat(template.WeightPercentage),
		SortOrder:          template.SortOrder,
		PublishAt:          payload.PublishAt,
		Deadline:           *payload.Deadline,
		LateDeadline:       payload.LateDeadline,
		LatePenaltyPercent: copyFloat(payload.LatePenaltyPercent),
		AutoPublish:        payload.AutoPublish != nil && *payload.AutoPublish,
		Status:             status,
	}
	if status == models.AssignmentStatusPublished {
		publishedAt := now
		snapshot.PublishedAt = &publishedAt
	}

	snapshot.Criteria = make([]models.PublishedGradingCriteria, 0, len(template.Criteria))
	for _, criterion := range template.Criteria {
		snapshot.Criteria = append(snapshot.Criteria, models.PublishedGradingCriteria{
			Name:      criterion.Name,
			MaxPoints: criterion.MaxPoints,
			SortOrder: criterion.SortOrder,
		})
	}
	return snapshot
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}
