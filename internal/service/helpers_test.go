package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/models"
)

var fixedNow = time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// setupPooledTestDB opens a file database with several connections. Every transaction
// takes the write lock at BEGIN, so work outside a transaction can interleave.
func setupPooledTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "course.db") + "?_txlock=immediate&_busy_timeout=10000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type courseFixture struct {
	Course   models.Course
	Instance models.CourseInstance
}

func seedCourse(t *testing.T, db *gorm.DB, open bool, limit *int) courseFixture {
	t.Helper()
	course := models.Course{Code: uuid.NewString()[:8], Title: "Distributed Systems"}
	require.NoError(t, db.Create(&course).Error)

	instance := models.CourseInstance{CourseID: course.ID, Semester: "2024-spring", EnrollmentOpen: open, EnrollmentLimit: limit}
	require.NoError(t, db.Create(&instance).Error)
	if !open {
		require.NoError(t, db.Model(&instance).Update("enrollment_open", false).Error)
	}
	return courseFixture{Course: course, Instance: instance}
}

func seedStudents(t *testing.T, db *gorm.DB, n int) []models.Student {
	t.Helper()
	students := make([]models.Student, 0, n)
	for i := 0; i < n; i++ {
		student := models.Student{Name: fmt.Sprintf("Student %d", i+1), Email: fmt.Sprintf("%s@example.com", uuid.NewString()[:8])}
		require.NoError(t, db.Create(&student).Error)
		students = append(students, student)
	}
	return students
}

func seedPointsTemplate(t *testing.T, db *gorm.DB, courseID uint, maxPoints float64, criteria ...float64) models.AssignmentTemplate {
	t.Helper()
	weight := 40.0
	template := models.AssignmentTemplate{
		CourseID:         courseID,
		Title:            "Consensus essay",
		AssignmentType:   models.AssignmentTypeHomework,
		GradingMode:      models.GradingModePoints,
		MaxPoints:        &maxPoints,
		WeightPercentage: &weight,
	}
	require.NoError(t, db.Create(&template).Error)
	for i, points := range criteria {
		row := models.GradingCriteriaTemplate{TemplateID: template.ID, Name: fmt.Sprintf("criterion-%d", i), MaxPoints: points, SortOrder: i}
		require.NoError(t, db.Create(&row).Error)
	}
	return template
}

type assignmentOptions struct {
	mode         models.GradingMode
	status       models.AssignmentStatus
	maxPoints    float64
	weight       *float64
	deadline     time.Time
	lateDeadline *time.Time
	penalty      *float64
	criteria     []float64
}

func seedAssignment(t *testing.T, db *gorm.DB, instanceID uint, opts assignmentOptions) models.PublishedAssignment {
	t.Helper()
	if opts.mode == "" {
		opts.mode = models.GradingModePoints
	}
	if opts.status == "" {
		opts.status = models.AssignmentStatusPublished
	}
	if opts.deadline.IsZero() {
		opts.deadline = fixedNow.Add(24 * time.Hour)
	}

	assignment := models.PublishedAssignment{
		InstanceID:         instanceID,
		TemplateID:         1,
		Title:              "Raft lab",
		AssignmentType:     models.AssignmentTypeLab,
		GradingMode:        opts.mode,
		WeightPercentage:   opts.weight,
		Deadline:           opts.deadline,
		LateDeadline:       opts.lateDeadline,
		LatePenaltyPercent: opts.penalty,
		Status:             opts.status,
	}
	if opts.mode == models.GradingModePoints {
		maxPoints := opts.maxPoints
		if maxPoints == 0 {
			maxPoints = 100
		}
		assignment.MaxPoints = &maxPoints
	}
	require.NoError(t, db.Create(&assignment).Error)

	for i, points := range opts.criteria {
		row := models.PublishedGradingCriteria{PublishedAssignmentID: assignment.ID, Name: fmt.Sprintf("part-%d", i), MaxPoints: points, SortOrder: i}
		require.NoError(t, db.Create(&row).Error)
		assignment.Criteria = append(assignment.Criteria, row)
	}
	return assignment
}

func seedSubmission(t *testing.T, db *gorm.DB, assignmentID, studentID uint, status models.SubmissionStatus, late bool) models.Submission {
	t.Helper()
	submission := models.Submission{
		PublishedAssignmentID: assignmentID,
		StudentID:             studentID,
		Content:               "work",
		Status:                status,
		IsLate:                late,
	}
	if status != models.SubmissionStatusDraft {
		submitted := fixedNow
		submission.SubmittedAt = &submitted
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func ptrFloat(v float64) *float64 {
	return &v
}

func ptrInt(v int) *int {
	return &v
}

func ptrBool(v bool) *bool {
	return &v
}

func ptrTime(v time.Time) *time.Time {
	return &v
}

type stubActivityRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *stubActivityRecorder) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return dto.ActivityResponse{Action: entry.Action, EntityType: entry.EntityType, EntityID: entry.EntityID}, nil
}

func (s *stubActivityRecorder) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]string, 0, len(n.events))
	for _, event := range n.events {
		types = append(types, event.Type)
	}
	return types
}

type stubUploader struct {
	names []string
	err   error
}

func (u *stubUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	u.names = append(u.names, name)
	return "https://cdn.test/" + name, nil
}

type stubInvalidator struct {
	instances []uint
}

func (s *stubInvalidator) InvalidateInstance(_ context.Context, instanceID uint) {
	s.instances = append(s.instances, instanceID)
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))
	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
