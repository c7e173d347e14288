package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/config"
	"github.com/noah-isme/gema-course-api/internal/handler"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/repository"
	"github.com/noah-isme/gema-course-api/internal/router"
	"github.com/noah-isme/gema-course-api/internal/service"
)

const (
	headerUser = "X-Test-User"
	headerRole = "X-Test-Role"
)

type envelope[T any] struct {
	Success    bool                   `json:"success"`
	StatusCode int                    `json:"statusCode"`
	Message    string                 `json:"message"`
	Data       T                      `json:"data"`
	Meta       map[string]interface{} `json:"meta"`
	Details    json.RawMessage        `json:"details"`
}

type courseApp struct {
	app      *fiber.App
	db       *gorm.DB
	course   models.Course
	instance models.CourseInstance
	students []models.Student
	stream   service.EventStream
}

// testIdentity stands in for JWTProtected: it trusts the test headers.
func testIdentity(c *fiber.Ctx) error {
	if raw := c.Get(headerUser); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get(headerRole); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupCourseApp(t *testing.T, uploader service.FileUploader) courseApp {
	t.Helper()
	return newCourseApp(t, uploader, nil)
}

func newCourseApp(t *testing.T, uploader service.FileUploader, enrollLimiter fiber.Handler) courseApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	courseRepo := repository.NewCourseRepository(db)
	stream := service.NewEventStream(courseRepo, service.EventStreamSources{}, logger)
	assignmentRepo := repository.NewPublishedAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), validate, logger)
	gradebookService := service.NewGradebookService(courseRepo, assignmentRepo, submissionRepo, repository.NewAnalyticsRepository(db), nil, 0, logger)
	criteriaService := service.NewGradingCriteriaService(courseRepo, repository.NewTemplateRepository(db), validate, logger)
	publisherService := service.NewAssignmentPublisherService(courseRepo, assignmentRepo, validate, activityService, stream, logger)
	submissionService := service.NewSubmissionService(assignmentRepo, submissionRepo, validate, service.SubmissionServiceOptions{
		Uploader:           uploader,
		Activity:           activityService,
		Notifier:           stream,
		Analytics:          gradebookService,
		MaxAttachmentBytes: 1 << 20,
	}, logger)
	enrollmentService := service.NewEnrollmentService(courseRepo, repository.NewEnrollmentRepository(db), gradebookService, validate, activityService, stream, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Course Test"}, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(publisherService, validate, logger),
		TemplateHandler:   handler.NewTemplateHandler(criteriaService, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		EnrollmentHandler: handler.NewEnrollmentHandler(enrollmentService, gradebookService, logger),
		GradebookHandler:  handler.NewGradebookHandler(gradebookService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		EventStream:       handler.NewEventStreamHandler(stream, logger),
		JWTMiddleware:     testIdentity,
		EnrollLimiter:     enrollLimiter,
	})

	course := models.Course{Code: uuid.NewString()[:8], Title: "Operating Systems"}
	require.NoError(t, db.Create(&course).Error)
	instance := models.CourseInstance{CourseID: course.ID, Semester: "2024-fall", EnrollmentOpen: true}
	require.NoError(t, db.Create(&instance).Error)

	students := make([]models.Student, 0, 3)
	for i := 0; i < 3; i++ {
		student := models.Student{Name: fmt.Sprintf("Student %d", i+1), Email: fmt.Sprintf("s%d-%s@example.com", i, uuid.NewString()[:6])}
		require.NoError(t, db.Create(&student).Error)
		students = append(students, student)
	}

	return courseApp{app: app, db: db, course: course, instance: instance, students: students, stream: stream}
}

type identity struct {
	id   uint
	role string
}

var instructorUser = identity{id: 900, role: "instructor"}

func studentUser(student models.Student) identity {
	return identity{id: student.ID, role: "student"}
}

func (a courseApp) do(t *testing.T, who *identity, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set(headerUser, strconv.FormatUint(uint64(who.id), 10))
		req.Header.Set(headerRole, who.role)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body envelope[json.RawMessage]
	decodeResponse(t, resp, &body)
	require.False(t, body.Success)
	var details struct {
		Code string `json:"code"`
	}
	if len(body.Details) > 0 {
		require.NoError(t, json.Unmarshal(body.Details, &details))
	}
	return details.Code
}

func idPath(format string, ids ...uint) string {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, args...)
}
