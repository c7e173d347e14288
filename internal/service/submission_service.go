package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/grading"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/observability"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

// AnalyticsInvalidator drops cached analytics after grades change.
type AnalyticsInvalidator interface {
	InvalidateInstance(ctx context.Context, instanceID uint)
}

// SubmissionService drives the draft, submit and grade lifecycle of student work.
type SubmissionService interface {
	SaveDraft(ctx context.Context, assignmentID, studentID uint, payload dto.SaveDraftRequest) (dto.SubmissionResponse, error)
	UploadAttachment(ctx context.Context, assignmentID, studentID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor ActivityActor) (dto.SubmissionResponse, error)
	GradePassFail(ctx context.Context, submissionID uint, payload dto.GradePassFailRequest, actor ActivityActor) (dto.SubmissionResponse, error)
	Get(ctx context.Context, submissionID uint, viewer ActivityActor) (dto.SubmissionResponse, error)
	GetForStudent(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error)
	ListByAssignment(ctx context.Context, assignmentID uint, status *models.SubmissionStatus) ([]dto.SubmissionResponse, error)
}

// SubmissionServiceOptions carries the optional collaborators of the submission service.
type SubmissionServiceOptions struct {
	Uploader           FileUploader
	Activity           ActivityRecorder
	Notifier           Notifier
	Analytics          AnalyticsInvalidator
	MaxAttachmentBytes int64
}

type submissionService struct {
	assignments repository.PublishedAssignmentRepository
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	uploader    FileUploader
	activity    ActivityRecorder
	notifier    Notifier
	analytics   AnalyticsInvalidator
	maxBytes    int64
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(
	assignments repository.PublishedAssignmentRepository,
	submissions repository.SubmissionRepository,
	validate *validator.Validate,
	opts SubmissionServiceOptions,
	logger zerolog.Logger,
) SubmissionService {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &submissionService{
		assignments: assignments,
		submissions: submissions,
		validator:   validate,
		uploader:    opts.Uploader,
		activity:    opts.Activity,
		notifier:    notifier,
		analytics:   opts.Analytics,
		maxBytes:    opts.MaxAttachmentBytes,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-course-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) SaveDraft(ctx context.Context, assignmentID, studentID uint, payload dto.SaveDraftRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.editableDraft(ctx, assignmentID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission.Content = s.sanitizer.Sanitize(payload.Content)
	if payload.Attachments != nil {
		submission.Attachments = append([]string{}, payload.Attachments...)
	}

	if err := s.persistDraft(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	observability.Submissions().WithLabelValues(string(models.SubmissionStatusDraft)).Inc()
	s.logger.Debug().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", assignmentID).
		Uint("student_id", studentID).
		Msg("draft saved")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) UploadAttachment(ctx context.Context, assignmentID, studentID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.upload_attachment", trace.WithAttributes(
		attribute.Int("submission.assignment_id", int(assignmentID)),
		attribute.Int("submission.student_id", int(studentID)),
	))
	defer span.End()

	if s.uploader == nil {
		failSpan(span, ErrUploadsDisabled)
		return dto.SubmissionResponse{}, ErrUploadsDisabled
	}

	submission, err := s.editableDraft(ctx, assignmentID, studentID)
	if err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}
	if len(submission.Attachments) >= maxAttachmentsPerDraft {
		err := apperror.BadRequest("", fmt.Sprintf("a submission may carry at most %d attachments", maxAttachmentsPerDraft))
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	upload, err := readAttachment(file, s.maxBytes)
	if err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}
	span.SetAttributes(attribute.String("attachment.mime", upload.mimeType), attribute.Int("attachment.size", len(upload.payload)))

	name := fmt.Sprintf("assignments/%d/students/%d/%s", assignmentID, studentID, upload.name)
	url, err := s.uploader.Upload(ctx, name, bytes.NewReader(upload.payload))
	if err != nil {
		observability.Attachments().WithLabelValues("storage").Inc()
		err = fmt.Errorf("failed to upload attachment: %w", err)
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	submission.Attachments = append(submission.Attachments, url)
	if err := s.persistDraft(ctx, &submission); err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	observability.Attachments().WithLabelValues("stored").Inc()
	s.logger.Info().Uint("submission_id", submission.ID).Str("mime", upload.mimeType).Msg("attachment stored")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Submit(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.Int("submission.assignment_id", int(assignmentID)),
		attribute.Int("submission.student_id", int(studentID)),
	))
	defer span.End()

	assignment, err := s.openAssignment(ctx, assignmentID)
	if err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	action := models.SubmissionActionSubmit
	if assignment.IsPastDeadline(now) {
		action = models.SubmissionActionSubmitLate
	}

	from := submission.Status
	next, err := from.Transition(action)
	if err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}
	if assignment.IsPastLateDeadline(now) {
		err := apperror.Conflict(apperror.CodeLateDeadlinePassed, "the late submission window has closed")
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	submission.Status = next
	submission.IsLate = next == models.SubmissionStatusLate
	submission.SubmittedAt = &now
	if err := s.submissions.Update(ctx, &submission, from); err != nil {
		err = staleAs(err, "submission changed while it was being submitted")
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	if s.analytics != nil {
		s.analytics.InvalidateInstance(ctx, assignment.InstanceID)
	}

	observability.Submissions().WithLabelValues(string(next)).Inc()
	span.SetAttributes(attribute.Bool("submission.late", submission.IsLate))
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Bool("late", submission.IsLate).
		Msg("submission submitted")

	s.notifier.Notify(ctx, Event{
		Type:       EventSubmissionSubmitted,
		InstanceID: assignment.InstanceID,
		EntityID:   submission.ID,
		StudentID:  uintPtr(studentID),
		Payload:    map[string]interface{}{"assignmentId": assignment.ID, "isLate": submission.IsLate},
	})

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.grade", trace.WithAttributes(
		attribute.Int("submission.id", int(submissionID)),
		attribute.Int("submission.criteria_grades", len(payload.CriteriaGrades)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.gradable(ctx, submissionID, models.GradingModePoints)
	if err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}
	assignment := submission.Assignment
	from := submission.Status

	awards := make([]grading.Award, 0, len(payload.CriteriaGrades))
	for _, input := range payload.CriteriaGrades {
		awards = append(awards, grading.Award{CriteriaID: input.CriteriaID, PointsAwarded: *input.PointsAwarded})
	}
	criteria := make([]grading.Criterion, 0, len(assignment.Criteria))
	for _, criterion := range assignment.Criteria {
		criteria = append(criteria, grading.Criterion{ID: criterion.ID, Name: criterion.Name, MaxPoints: criterion.MaxPoints})
	}
	if err := grading.ValidateAwards(awards, criteria); err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	result := grading.Compute(awards, assignment.PenaltyPercent(), submission.IsLate)

	grades := make([]models.SubmissionGrade, 0, len(payload.CriteriaGrades))
	for _, input := range payload.CriteriaGrades {
		grades = append(grades, models.SubmissionGrade{
			SubmissionID:  submission.ID,
			CriteriaID:    input.CriteriaID,
			PointsAwarded: *input.PointsAwarded,
			Feedback:      s.sanitizeOptional(input.Feedback),
		})
	}

	now := s.now()
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &now
	submission.GradedBy = uintPtr(actor.ID)
	submission.TotalPoints = floatPtr(result.TotalPoints)
	submission.LatePenaltyApplied = floatPtr(result.LatePenaltyApplied)
	submission.FinalPoints = floatPtr(result.FinalPoints)
	submission.IsPassed = nil
	if payload.OverallFeedback != nil {
		submission.Feedback = s.sanitizer.Sanitize(*payload.OverallFeedback)
	}

	if err := s.submissions.ReplaceGrades(ctx, &submission, from, grades); err != nil {
		err = staleAs(err, "submission changed while it was being graded")
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}
	submission.Grades = grades

	span.SetAttributes(attribute.Float64("submission.final_points", result.FinalPoints))
	s.afterGrade(ctx, submission, actor, models.GradingModePoints, map[string]interface{}{
		"total_points": result.TotalPoints,
		"late_penalty": result.LatePenaltyApplied,
		"final_points": result.FinalPoints,
	})

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) GradePassFail(ctx context.Context, submissionID uint, payload dto.GradePassFailRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.grade_pass_fail", trace.WithAttributes(
		attribute.Int("submission.id", int(submissionID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.gradable(ctx, submissionID, models.GradingModePassFail)
	if err != nil {
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}

	from := submission.Status
	result := grading.PassFail(*payload.IsPassed)

	now := s.now()
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &now
	submission.GradedBy = uintPtr(actor.ID)
	submission.IsPassed = &result.IsPassed
	submission.TotalPoints = nil
	submission.LatePenaltyApplied = nil
	submission.FinalPoints = nil
	submission.Feedback = s.sanitizer.Sanitize(payload.Feedback)

	if err := s.submissions.ReplaceGrades(ctx, &submission, from, nil); err != nil {
		err = staleAs(err, "submission changed while it was being graded")
		failSpan(span, err)
		return dto.SubmissionResponse{}, err
	}
	submission.Grades = nil

	s.afterGrade(ctx, submission, actor, models.GradingModePassFail, map[string]interface{}{
		"is_passed": result.IsPassed,
	})

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, submissionID uint, viewer ActivityActor) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundAs(err, "submission")
	}
	if normalizeRole(viewer.Role) == "student" && submission.StudentID != viewer.ID {
		return dto.SubmissionResponse{}, apperror.Forbidden("students may only view their own submissions")
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) GetForStudent(ctx context.Context, assignmentID, studentID uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundAs(err, "submission")
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListByAssignment(ctx context.Context, assignmentID uint, status *models.SubmissionStatus) ([]dto.SubmissionResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		return nil, notFoundAs(err, "assignment")
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		AssignmentID: &assignmentID,
		Status:       status,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

// openAssignment loads the assignment and rejects work on anything not published.
func (s *submissionService) openAssignment(ctx context.Context, assignmentID uint) (models.PublishedAssignment, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return models.PublishedAssignment{}, notFoundAs(err, "assignment")
	}
	if err := assignment.AcceptsWork(); err != nil {
		return models.PublishedAssignment{}, err
	}
	return assignment, nil
}

// editableDraft returns the student's draft, or a new unsaved one, when it may still change.
func (s *submissionService) editableDraft(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	if _, err := s.openAssignment(ctx, assignmentID); err != nil {
		return models.Submission{}, err
	}

	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, err
		}
		submission = models.Submission{PublishedAssignmentID: assignmentID, StudentID: studentID}
	}

	next, err := submission.Status.Transition(models.SubmissionActionSaveDraft)
	if err != nil {
		return models.Submission{}, err
	}
	submission.Status = next
	return submission, nil
}

// persistDraft inserts or updates a draft. A concurrent first save for the same pair is
// resolved by updating the row the other request created. Updates only land on rows that
// are still drafts.
func (s *submissionService) persistDraft(ctx context.Context, submission *models.Submission) error {
	if submission.ID != 0 {
		return staleDraft(s.submissions.Update(ctx, submission, models.SubmissionStatusDraft))
	}

	err := s.submissions.Create(ctx, submission)
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	existing, err := s.submissions.GetByAssignmentAndStudent(ctx, submission.PublishedAssignmentID, submission.StudentID)
	if err != nil {
		return err
	}
	if _, err := existing.Status.Transition(models.SubmissionActionSaveDraft); err != nil {
		return err
	}
	existing.Content = submission.Content
	existing.Attachments = submission.Attachments
	if err := s.submissions.Update(ctx, &existing, models.SubmissionStatusDraft); err != nil {
		return staleDraft(err)
	}
	*submission = existing
	return nil
}

// gradable loads a submission and checks the grading preconditions shared by both modes.
func (s *submissionService) gradable(ctx context.Context, submissionID uint, mode models.GradingMode) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return models.Submission{}, notFoundAs(err, "submission")
	}
	if err := submission.Assignment.AcceptsWork(); err != nil {
		return models.Submission{}, err
	}
	if submission.Assignment.GradingMode != mode {
		return models.Submission{}, apperror.BadRequest(apperror.CodeGradingModeMismatch,
			fmt.Sprintf("assignment is graded as %s", submission.Assignment.GradingMode))
	}
	if _, err := submission.Status.Transition(models.SubmissionActionGrade); err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *submissionService) afterGrade(ctx context.Context, submission models.Submission, actor ActivityActor, mode models.GradingMode, metadata map[string]interface{}) {
	observability.GradesRecorded().WithLabelValues(string(mode)).Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("graded_by", actor.ID).
		Str("mode", string(mode)).
		Msg("submission graded")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "submission.grade",
		EntityType: models.EntitySubmission,
		EntityID:   uintPtr(submission.ID),
		Metadata:   metadata,
	})

	if s.analytics != nil {
		s.analytics.InvalidateInstance(ctx, submission.Assignment.InstanceID)
	}

	s.notifier.Notify(ctx, Event{
		Type:       EventSubmissionGraded,
		InstanceID: submission.Assignment.InstanceID,
		EntityID:   submission.ID,
		StudentID:  uintPtr(submission.StudentID),
		Payload:    map[string]interface{}{"assignmentId": submission.PublishedAssignmentID},
	})
}

func (s *submissionService) sanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(*value))
	return &cleaned
}

// staleDraft reports a draft write that lost the race to a submit or a grade.
func staleDraft(err error) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		return apperror.Conflict(apperror.CodeAlreadySubmitted, "submission can no longer be edited")
	}
	return err
}

func floatPtr(v float64) *float64 {
	return &v
}
