package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	err     error
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	if m.err != nil {
		return m.err
	}
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, error) {
	return append([]models.ActivityLog(nil), m.entries...), nil
}

func TestActivityServiceRecordMasksSensitiveMetadata(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testValidator(), testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		Actor:      ActivityActor{ID: 1, Role: "Instructor", CorrelationID: "req-1"},
		Action:     "Enrollment.Enroll",
		EntityType: models.EntityEnrollment,
		EntityID:   uintPtr(5),
		Metadata: map[string]interface{}{
			"student_email": "student@example.com",
			"resetToken":    "abc",
			"status":        "enrolled",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "s***t@example.com", entry.Metadata["student_email"])
	require.Equal(t, "***", entry.Metadata["resetToken"])
	require.Equal(t, "enrolled", entry.Metadata["status"])
	require.Equal(t, "instructor", entry.ActorRole)
	require.Equal(t, "enrollment.enroll", entry.Action)
	require.Equal(t, "req-1", entry.CorrelationID)
}

func TestActivityServiceRecordRequiresActionAndEntity(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testValidator(), testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: models.EntitySubmission})
	require.Error(t, err)

	_, err = svc.Record(context.Background(), ActivityEntry{Action: "submission.grade"})
	require.Error(t, err)
}

func TestRecordActivitySwallowsFailures(t *testing.T) {
	repo := &memoryActivityRepo{err: errors.New("db down")}
	svc := NewActivityService(repo, testValidator(), testLogger())

	require.NotPanics(t, func() {
		recordActivity(context.Background(), svc, testLogger(), ActivityEntry{Action: "x", EntityType: "y"})
		recordActivity(context.Background(), nil, testLogger(), ActivityEntry{Action: "x", EntityType: "y"})
	})
}

func TestActivityServiceListFilters(t *testing.T) {
	db := setupTestDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), testValidator(), testLogger())
	instructor := ActivityActor{ID: 7, Role: "instructor"}

	for _, entry := range []ActivityEntry{
		{Actor: instructor, Action: "submission.grade", EntityType: models.EntitySubmission, EntityID: uintPtr(1)},
		{Actor: instructor, Action: "submission.grade", EntityType: models.EntitySubmission, EntityID: uintPtr(2)},
		{Actor: ActivityActor{ID: 8, Role: "student"}, Action: "enrollment.drop", EntityType: models.EntityEnrollment, EntityID: uintPtr(1)},
	} {
		_, err := svc.Record(context.Background(), entry)
		require.NoError(t, err)
	}

	submissions, err := svc.List(context.Background(), dto.ActivityListRequest{EntityType: models.EntitySubmission})
	require.NoError(t, err)
	require.Len(t, submissions, 2)

	single, err := svc.List(context.Background(), dto.ActivityListRequest{EntityType: models.EntitySubmission, EntityID: 2})
	require.NoError(t, err)
	require.Len(t, single, 1)
	require.Equal(t, uint(2), *single[0].EntityID)

	byActor, err := svc.List(context.Background(), dto.ActivityListRequest{ActorID: 8})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	require.Equal(t, "enrollment.drop", byActor[0].Action)

	limited, err := svc.List(context.Background(), dto.ActivityListRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = svc.List(context.Background(), dto.ActivityListRequest{EntityType: "gallery"})
	require.Error(t, err)
}
