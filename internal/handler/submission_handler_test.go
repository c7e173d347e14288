package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
)

type memoryUploader struct {
	names []string
}

func (u *memoryUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	u.names = append(u.names, name)
	return "https://files.test/" + name, nil
}

func TestSubmissionLifecycleOverHTTP(t *testing.T) {
	a := setupCourseApp(t, nil)
	template := createTemplate(t, a, 60, 40)
	assignment := publishTemplate(t, a, template.ID, time.Now().Add(24*time.Hour))
	student := studentUser(a.students[0])

	resp := a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/assignments/%d/draft", assignment.ID), map[string]interface{}{
		"content": "first pass <script>alert(1)</script>",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var draft envelope[dto.SubmissionResponse]
	decodeResponse(t, resp, &draft)
	require.Equal(t, "draft", draft.Data.Status)
	require.NotContains(t, draft.Data.Content, "<script>")

	resp = a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/assignments/%d/submit", assignment.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var submitted envelope[dto.SubmissionResponse]
	decodeResponse(t, resp, &submitted)
	require.Equal(t, "submitted", submitted.Data.Status)
	require.False(t, submitted.Data.IsLate)

	resp = a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/assignments/%d/submit", assignment.ID), nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, apperror.CodeAlreadySubmitted, errorCode(t, resp))

	resp = a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/%d/grade", submitted.Data.ID), map[string]interface{}{})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = a.do(t, &instructorUser, http.MethodPost, idPath("/api/v1/submissions/%d/grade", submitted.Data.ID), map[string]interface{}{
		"criteriaGrades": []map[string]interface{}{
			{"criteriaId": assignment.Criteria[0].ID, "pointsAwarded": 50},
			{"criteriaId": assignment.Criteria[1].ID, "pointsAwarded": 35},
		},
		"overallFeedback": "solid work",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var graded envelope[dto.SubmissionResponse]
	decodeResponse(t, resp, &graded)
	require.Equal(t, "graded", graded.Data.Status)
	require.NotNil(t, graded.Data.FinalPoints)
	require.InDelta(t, 85, *graded.Data.FinalPoints, 1e-9)
	require.Len(t, graded.Data.Grades, 2)

	resp = a.do(t, &instructorUser, http.MethodPost, idPath("/api/v1/submissions/%d/grade-pass-fail", submitted.Data.ID), map[string]interface{}{
		"isPassed": true,
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, apperror.CodeGradingModeMismatch, errorCode(t, resp))

	resp = a.do(t, &student, http.MethodGet, idPath("/api/v1/submissions/assignments/%d/mine", assignment.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	other := studentUser(a.students[1])
	resp = a.do(t, &other, http.MethodGet, idPath("/api/v1/submissions/%d", graded.Data.ID), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = a.do(t, &instructorUser, http.MethodGet, idPath("/api/v1/submissions/assignments/%d?status=graded", assignment.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed envelope[[]dto.SubmissionResponse]
	decodeResponse(t, resp, &listed)
	require.Len(t, listed.Data, 1)

	resp = a.do(t, &instructorUser, http.MethodGet, idPath("/api/v1/submissions/assignments/%d?status=lost", assignment.ID), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmissionSubmitWithoutDraftIsNotFound(t *testing.T) {
	a := setupCourseApp(t, nil)
	template := createTemplate(t, a)
	assignment := publishTemplate(t, a, template.ID, time.Now().Add(time.Hour))
	student := studentUser(a.students[0])

	resp := a.do(t, &student, http.MethodPost, idPath("/api/v1/submissions/assignments/%d/submit", assignment.ID), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func uploadRequest(t *testing.T, assignmentID, studentID uint, name string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, idPath("/api/v1/submissions/assignments/%d/attachments", assignmentID), body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(headerUser, strconv.FormatUint(uint64(studentID), 10))
	req.Header.Set(headerRole, "student")
	return req
}

func TestSubmissionAttachmentUpload(t *testing.T) {
	uploader := &memoryUploader{}
	a := setupCourseApp(t, uploader)
	template := createTemplate(t, a)
	assignment := publishTemplate(t, a, template.ID, time.Now().Add(time.Hour))

	resp, err := a.app.Test(uploadRequest(t, assignment.ID, a.students[0].ID, "notes.txt", []byte("plain text notes")), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body envelope[dto.SubmissionResponse]
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data.Attachments, 1)
	require.Contains(t, body.Data.Attachments[0], "notes.txt")
	require.Len(t, uploader.names, 1)

	missing := httptest.NewRequest(http.MethodPost, idPath("/api/v1/submissions/assignments/%d/attachments", assignment.ID), nil)
	missing.Header.Set(headerUser, strconv.FormatUint(uint64(a.students[0].ID), 10))
	missing.Header.Set(headerRole, "student")
	resp, err = a.app.Test(missing, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmissionAttachmentUploadDisabled(t *testing.T) {
	a := setupCourseApp(t, nil)
	template := createTemplate(t, a)
	assignment := publishTemplate(t, a, template.ID, time.Now().Add(time.Hour))

	resp, err := a.app.Test(uploadRequest(t, assignment.ID, a.students[0].ID, "notes.txt", []byte("text")), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
