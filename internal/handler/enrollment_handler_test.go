package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/models"
)

func TestEnrollmentSelfServiceFlow(t *testing.T) {
	a := setupCourseApp(t, nil)
	student := studentUser(a.students[0])

	resp := a.do(t, &student, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var enrolled envelope[dto.EnrollmentResponse]
	decodeResponse(t, resp, &enrolled)
	require.Equal(t, "enrolled", enrolled.Data.Status)
	require.Equal(t, a.students[0].ID, enrolled.Data.StudentID)

	resp = a.do(t, &student, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, apperror.CodeAlreadyEnrolled, errorCode(t, resp))

	other := studentUser(a.students[1])
	resp = a.do(t, &other, http.MethodPost, idPath("/api/v1/enrollments/%d/drop", enrolled.Data.ID), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = a.do(t, &student, http.MethodPost, idPath("/api/v1/enrollments/%d/drop", enrolled.Data.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var dropped envelope[dto.EnrollmentResponse]
	decodeResponse(t, resp, &dropped)
	require.Equal(t, "dropped", dropped.Data.Status)
	require.NotNil(t, dropped.Data.DroppedAt)

	resp = a.do(t, &instructorUser, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestEnrollmentClosedInstance(t *testing.T) {
	a := setupCourseApp(t, nil)
	require.NoError(t, a.db.Model(&models.CourseInstance{}).Where("id = ?", a.instance.ID).Update("enrollment_open", false).Error)
	student := studentUser(a.students[0])

	resp := a.do(t, &student, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, apperror.CodeEnrollmentClosed, errorCode(t, resp))

	resp = a.do(t, &student, http.MethodPost, "/api/v1/enrollments/instances/4242/enroll", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestEnrollmentBulkAndStatus(t *testing.T) {
	a := setupCourseApp(t, nil)

	resp := a.do(t, &instructorUser, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/bulk-enroll", a.instance.ID), map[string]interface{}{
		"studentIds": []uint{a.students[0].ID, a.students[1].ID, 31337},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var bulk envelope[dto.BulkEnrollResponse]
	decodeResponse(t, resp, &bulk)
	require.ElementsMatch(t, []uint{a.students[0].ID, a.students[1].ID}, bulk.Data.Successful)
	require.Len(t, bulk.Data.Failed, 1)
	require.Equal(t, uint(31337), bulk.Data.Failed[0].StudentID)
	require.EqualValues(t, 2, bulk.Meta["successful"])

	resp = a.do(t, &instructorUser, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/bulk-enroll", a.instance.ID), map[string]interface{}{
		"studentIds": []uint{},
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, &instructorUser, http.MethodGet, idPath("/api/v1/enrollments/instances/%d?status=enrolled", a.instance.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed envelope[[]dto.EnrollmentResponse]
	decodeResponse(t, resp, &listed)
	require.Len(t, listed.Data, 2)

	resp = a.do(t, &instructorUser, http.MethodPatch, idPath("/api/v1/enrollments/%d/status", listed.Data[0].ID), map[string]string{"status": "completed"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var completed envelope[dto.EnrollmentResponse]
	decodeResponse(t, resp, &completed)
	require.Equal(t, "completed", completed.Data.Status)
	require.NotNil(t, completed.Data.FinalGrade)

	resp = a.do(t, &instructorUser, http.MethodPatch, idPath("/api/v1/enrollments/%d/status", listed.Data[0].ID), map[string]string{"status": "dropped"})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = a.do(t, &instructorUser, http.MethodGet, idPath("/api/v1/enrollments/instances/%d?status=pending", a.instance.ID), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEnrollmentRateLimiter(t *testing.T) {
	a := newCourseApp(t, nil, middleware.RateLimit("enroll", 1, time.Minute, "id"))
	first := studentUser(a.students[0])
	second := studentUser(a.students[1])

	resp := a.do(t, &first, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = a.do(t, &first, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "too many requests, retry later", errorMessage(t, resp))

	other := models.CourseInstance{CourseID: a.course.ID, Semester: "2025-spring", EnrollmentOpen: true}
	require.NoError(t, a.db.Create(&other).Error)
	resp = a.do(t, &first, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", other.ID), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = a.do(t, &second, http.MethodPost, idPath("/api/v1/enrollments/instances/%d/enroll", a.instance.ID), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestFinalGradeRoute(t *testing.T) {
	a := setupCourseApp(t, nil)
	template := createTemplate(t, a)
	assignment := publishTemplate(t, a, template.ID, time.Now().Add(time.Hour))
	student := studentUser(a.students[0])

	resp := a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/assignments/%d/draft", assignment.ID), map[string]string{"content": "answer"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp = a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/assignments/%d/submit", assignment.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var submitted envelope[dto.SubmissionResponse]
	decodeResponse(t, resp, &submitted)

	resp = a.do(t, &instructorUser, http.MethodPost, idPath("/api/v1/submissions/%d/grade", submitted.Data.ID), map[string]interface{}{
		"criteriaGrades": []map[string]interface{}{},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = a.do(t, &student, http.MethodGet, idPath("/api/v1/enrollments/instances/%d/students/%d/final-grade", a.instance.ID, a.students[0].ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var grade envelope[dto.FinalGradeResponse]
	decodeResponse(t, resp, &grade)
	require.Equal(t, 1, grade.Data.GradedCount)
	require.InDelta(t, 0, grade.Data.FinalGrade, 1e-9)
	require.True(t, grade.Data.IsEstimate)

	resp = a.do(t, &student, http.MethodGet, idPath("/api/v1/enrollments/instances/%d/students/%d/final-grade", a.instance.ID, a.students[1].ID), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
