package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/grading"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/observability"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

// GradebookService aggregates grades per student and per instance.
type GradebookService interface {
	Gradebook(ctx context.Context, instanceID, studentID uint) (dto.GradebookResponse, error)
	InstanceAnalytics(ctx context.Context, instanceID uint, assignmentID *uint) (dto.InstanceAnalyticsResponse, error)
	FinalGrade(ctx context.Context, instanceID, studentID uint) (dto.FinalGradeResponse, error)
	InvalidateInstance(ctx context.Context, instanceID uint)
}

type gradebookService struct {
	courses     repository.CourseRepository
	assignments repository.PublishedAssignmentRepository
	submissions repository.SubmissionRepository
	analytics   repository.AnalyticsRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradebookService constructs the gradebook service. A nil cache disables analytics caching.
func NewGradebookService(
	courses repository.CourseRepository,
	assignments repository.PublishedAssignmentRepository,
	submissions repository.SubmissionRepository,
	analytics repository.AnalyticsRepository,
	cache *redis.Client,
	ttl time.Duration,
	logger zerolog.Logger,
) GradebookService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &gradebookService{
		courses:     courses,
		assignments: assignments,
		submissions: submissions,
		analytics:   analytics,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "gradebook_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-course-api/internal/service/gradebook"),
		now:         time.Now,
	}
}

// Gradebook lists every visible assignment of the instance with the student's submission, ordered by deadline.
func (s *gradebookService) Gradebook(ctx context.Context, instanceID, studentID uint) (dto.GradebookResponse, error) {
	ctx, span := s.tracer.Start(ctx, "gradebook.student", trace.WithAttributes(
		attribute.Int("gradebook.instance_id", int(instanceID)),
		attribute.Int("gradebook.student_id", int(studentID)),
	))
	defer span.End()

	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		err = notFoundAs(err, "course instance")
		failSpan(span, err)
		return dto.GradebookResponse{}, err
	}
	student, err := s.courses.GetStudent(ctx, studentID)
	if err != nil {
		err = notFoundAs(err, "student")
		failSpan(span, err)
		return dto.GradebookResponse{}, err
	}

	assignments, byAssignment, err := s.studentWork(ctx, instanceID, studentID)
	if err != nil {
		failSpan(span, err)
		return dto.GradebookResponse{}, err
	}

	entries := make([]dto.GradebookEntry, 0, len(assignments))
	items := make([]grading.WeightedItem, 0, len(assignments))
	for _, assignment := range assignments {
		entry := dto.GradebookEntry{Assignment: dto.NewPublishedAssignmentResponse(assignment)}
		if submission, ok := byAssignment[assignment.ID]; ok {
			response := dto.NewSubmissionResponse(submission)
			entry.Submission = &response
			if pct, graded := submissionPercentage(assignment, submission); graded {
				entry.Percentage = floatPtr(pct)
				items = append(items, grading.WeightedItem{Percentage: pct, WeightPercentage: weightOf(assignment)})
			}
		}
		entries = append(entries, entry)
	}

	return dto.GradebookResponse{
		InstanceID: instanceID,
		StudentID:  studentID,
		Student:    &dto.StudentLite{ID: student.ID, Name: student.Name, Email: student.Email},
		Entries:    entries,
		FinalGrade: grading.WeightedFinalGrade(items),
	}, nil
}

// FinalGrade is Σ percentage × weight / 100 over graded assignments. It is not normalised.
func (s *gradebookService) FinalGrade(ctx context.Context, instanceID, studentID uint) (dto.FinalGradeResponse, error) {
	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		return dto.FinalGradeResponse{}, notFoundAs(err, "course instance")
	}

	assignments, byAssignment, err := s.studentWork(ctx, instanceID, studentID)
	if err != nil {
		return dto.FinalGradeResponse{}, err
	}

	items := make([]grading.WeightedItem, 0, len(assignments))
	gradedWeight := 0.0
	for _, assignment := range assignments {
		submission, ok := byAssignment[assignment.ID]
		if !ok {
			continue
		}
		pct, graded := submissionPercentage(assignment, submission)
		if !graded {
			continue
		}
		weight := weightOf(assignment)
		gradedWeight += weight
		items = append(items, grading.WeightedItem{Percentage: pct, WeightPercentage: weight})
	}

	return dto.FinalGradeResponse{
		InstanceID:   instanceID,
		StudentID:    studentID,
		FinalGrade:   grading.WeightedFinalGrade(items),
		GradedWeight: gradedWeight,
		GradedCount:  len(items),
		IsEstimate:   true,
	}, nil
}

// InstanceAnalytics bands graded points-mode submissions. Results are cached per instance
// until a grade in that instance changes or the TTL passes.
func (s *gradebookService) InstanceAnalytics(ctx context.Context, instanceID uint, assignmentID *uint) (dto.InstanceAnalyticsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "gradebook.analytics", trace.WithAttributes(
		attribute.Int("analytics.instance_id", int(instanceID)),
	))
	defer span.End()

	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		err = notFoundAs(err, "course instance")
		failSpan(span, err)
		return dto.InstanceAnalyticsResponse{}, err
	}
	if assignmentID != nil {
		span.SetAttributes(attribute.Int("analytics.assignment_id", int(*assignmentID)))
		assignment, err := s.assignments.GetByID(ctx, *assignmentID)
		if err != nil || assignment.InstanceID != instanceID {
			err = apperror.NotFound("assignment")
			failSpan(span, err)
			return dto.InstanceAnalyticsResponse{}, err
		}
	}

	key, field := analyticsCacheKey(instanceID, assignmentID)
	if cached, ok := s.readCache(ctx, key, field); ok {
		observability.AnalyticsCache().WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
		cached.CacheHit = true
		return cached, nil
	}
	observability.AnalyticsCache().WithLabelValues("miss").Inc()

	scope := repository.AnalyticsScope{InstanceID: instanceID, AssignmentID: assignmentID}
	graded, err := s.analytics.ListGradedSubmissions(ctx, scope)
	if err != nil {
		failSpan(span, err)
		return dto.InstanceAnalyticsResponse{}, err
	}
	total, err := s.analytics.CountSubmitted(ctx, scope)
	if err != nil {
		failSpan(span, err)
		return dto.InstanceAnalyticsResponse{}, err
	}

	// Pass/fail grades have no percentage to band; they are reported on their own.
	distribution := grading.NewDistribution()
	var passFail int64
	for _, submission := range graded {
		if submission.Assignment.GradingMode != models.GradingModePoints {
			passFail++
			continue
		}
		if pct, ok := submissionPercentage(submission.Assignment, submission); ok {
			distribution.Add(pct)
		}
	}

	counts := dto.GradeDistributionResponse{}
	for band, count := range distribution.Counts() {
		counts[string(band)] = count
	}

	response := dto.InstanceAnalyticsResponse{
		InstanceID:        instanceID,
		AssignmentID:      assignmentID,
		GradeDistribution: counts,
		AverageGrade:      distribution.Average(),
		TotalSubmissions:  total,
		GradedSubmissions: distribution.Len(),
		PassFailGraded:    passFail,
		GeneratedAt:       s.now().UTC(),
	}

	s.writeCache(ctx, key, field, response)
	return response, nil
}

// InvalidateInstance drops every cached analytics view of the instance.
func (s *gradebookService) InvalidateInstance(ctx context.Context, instanceID uint) {
	if s.cache == nil {
		return
	}
	key, _ := analyticsCacheKey(instanceID, nil)
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("instance_id", instanceID).Msg("failed to invalidate analytics cache")
	}
}

func (s *gradebookService) studentWork(ctx context.Context, instanceID, studentID uint) ([]models.PublishedAssignment, map[uint]models.Submission, error) {
	assignments, err := s.assignments.ListByInstance(ctx, instanceID, models.AssignmentStatusPublished, models.AssignmentStatusClosed)
	if err != nil {
		return nil, nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		InstanceID: &instanceID,
		StudentID:  &studentID,
	})
	if err != nil {
		return nil, nil, err
	}

	byAssignment := make(map[uint]models.Submission, len(submissions))
	for _, submission := range submissions {
		byAssignment[submission.PublishedAssignmentID] = submission
	}
	return assignments, byAssignment, nil
}

func (s *gradebookService) readCache(ctx context.Context, key, field string) (dto.InstanceAnalyticsResponse, bool) {
	if s.cache == nil {
		return dto.InstanceAnalyticsResponse{}, false
	}
	cached, err := s.cache.HGet(ctx, key, field).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read analytics cache")
		}
		return dto.InstanceAnalyticsResponse{}, false
	}

	var response dto.InstanceAnalyticsResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		s.logger.Warn().Err(err).Msg("discarding corrupt analytics cache entry")
		return dto.InstanceAnalyticsResponse{}, false
	}
	return response, true
}

func (s *gradebookService) writeCache(ctx context.Context, key, field string, response dto.InstanceAnalyticsResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode analytics cache entry")
		return
	}

	pipe := s.cache.TxPipeline()
	pipe.HSet(ctx, key, field, payload)
	pipe.Expire(ctx, key, s.cacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store analytics cache")
	}
}

// analyticsCacheKey keeps every view of one instance in a single hash so a grade change
// invalidates them together.
func analyticsCacheKey(instanceID uint, assignmentID *uint) (string, string) {
	key := fmt.Sprintf("course:analytics:instance:%d", instanceID)
	if assignmentID == nil {
		return key, "all"
	}
	return key, fmt.Sprintf("assignment:%d", *assignmentID)
}

// submissionPercentage converts a graded submission into a percentage. Pass/fail counts as 100 or 0.
func submissionPercentage(assignment models.PublishedAssignment, submission models.Submission) (float64, bool) {
	if !submission.IsGraded() {
		return 0, false
	}
	if assignment.GradingMode == models.GradingModePassFail {
		if submission.IsPassed == nil {
			return 0, false
		}
		if *submission.IsPassed {
			return 100, true
		}
		return 0, true
	}
	if submission.FinalPoints == nil || assignment.MaxPoints == nil {
		return 0, false
	}
	return grading.Percentage(*submission.FinalPoints, *assignment.MaxPoints), true
}

func weightOf(assignment models.PublishedAssignment) float64 {
	if assignment.WeightPercentage == nil {
		return 0
	}
	return *assignment.WeightPercentage
}
