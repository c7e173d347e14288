package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-course-api/internal/apperror"
	"github.com/noah-isme/gema-course-api/internal/dto"
	"github.com/noah-isme/gema-course-api/internal/models"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

type stubFinalGrades struct {
	grade float64
}

func (s stubFinalGrades) FinalGrade(_ context.Context, instanceID, studentID uint) (dto.FinalGradeResponse, error) {
	return dto.FinalGradeResponse{InstanceID: instanceID, StudentID: studentID, FinalGrade: s.grade}, nil
}

func setupEnrollments(t *testing.T, grades FinalGradeCalculator) (*gorm.DB, EnrollmentService, *stubActivityRecorder, *recordingNotifier) {
	t.Helper()
	return setupEnrollmentsOn(t, setupTestDB(t), grades)
}

func setupEnrollmentsOn(t *testing.T, db *gorm.DB, grades FinalGradeCalculator) (*gorm.DB, EnrollmentService, *stubActivityRecorder, *recordingNotifier) {
	t.Helper()
	activity := &stubActivityRecorder{}
	notifier := &recordingNotifier{}
	svc := NewEnrollmentService(
		repository.NewCourseRepository(db),
		repository.NewEnrollmentRepository(db),
		grades,
		testValidator(),
		activity,
		notifier,
		testLogger(),
	)
	if concrete, ok := svc.(*enrollmentService); ok {
		concrete.now = func() time.Time { return fixedNow }
	}
	return db, svc, activity, notifier
}

func TestEnrollmentEnrollAndDuplicate(t *testing.T) {
	db, svc, activity, notifier := setupEnrollments(t, nil)
	fixture := seedCourse(t, db, true, nil)
	student := seedStudents(t, db, 1)[0]
	actor := ActivityActor{ID: student.ID, Role: "student"}

	enrolled, err := svc.Enroll(context.Background(), fixture.Instance.ID, student.ID, actor)
	require.NoError(t, err)
	require.Equal(t, string(models.EnrollmentStatusEnrolled), enrolled.Status)
	require.Equal(t, fixedNow, enrolled.EnrolledAt.UTC())

	_, err = svc.Enroll(context.Background(), fixture.Instance.ID, student.ID, actor)
	require.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	require.Equal(t, apperror.CodeAlreadyEnrolled, apperror.CodeOf(err))

	require.Equal(t, []string{"enrollment.enroll"}, activity.actions())
	require.Equal(t, []string{EventStudentEnrolled}, notifier.types())
}

func TestEnrollmentEnrollRejections(t *testing.T) {
	db, svc, _, _ := setupEnrollments(t, nil)
	closed := seedCourse(t, db, false, nil)
	full := seedCourse(t, db, true, ptrInt(1))
	students := seedStudents(t, db, 2)
	actor := ActivityActor{ID: 1, Role: "instructor"}

	_, err := svc.Enroll(context.Background(), closed.Instance.ID, students[0].ID, actor)
	require.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
	require.Equal(t, apperror.CodeEnrollmentClosed, apperror.CodeOf(err))

	_, err = svc.Enroll(context.Background(), full.Instance.ID, students[0].ID, actor)
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), full.Instance.ID, students[1].ID, actor)
	require.Equal(t, apperror.CodeCapacityExceeded, apperror.CodeOf(err))

	_, err = svc.Enroll(context.Background(), 4321, students[0].ID, actor)
	require.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = svc.Enroll(context.Background(), full.Instance.ID, 9876, actor)
	require.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestEnrollmentConcurrentEnrollRespectsCapacity(t *testing.T) {
	db, svc, _, _ := setupEnrollmentsOn(t, setupPooledTestDB(t), nil)
	const limit = 3
	fixture := seedCourse(t, db, true, ptrInt(limit))
	students := seedStudents(t, db, 8)

	var wg sync.WaitGroup
	errs := make([]error, len(students))
	for i, student := range students {
		wg.Add(1)
		go func(i int, studentID uint) {
			defer wg.Done()
			_, errs[i] = svc.Enroll(context.Background(), fixture.Instance.ID, studentID, ActivityActor{ID: studentID, Role: "student"})
		}(i, student.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, apperror.CodeCapacityExceeded, apperror.CodeOf(err))
	}
	require.Equal(t, limit, succeeded)

	var count int64
	require.NoError(t, db.Model(&models.Enrollment{}).Where("status = ?", models.EnrollmentStatusEnrolled).Count(&count).Error)
	require.EqualValues(t, limit, count)
}

func TestEnrollmentBulkEnrollReportsPerStudent(t *testing.T) {
	db, svc, _, _ := setupEnrollments(t, nil)
	fixture := seedCourse(t, db, true, nil)
	students := seedStudents(t, db, 2)
	actor := ActivityActor{ID: 1, Role: "instructor"}

	_, err := svc.Enroll(context.Background(), fixture.Instance.ID, students[0].ID, actor)
	require.NoError(t, err)

	result, err := svc.BulkEnroll(context.Background(), fixture.Instance.ID, dto.BulkEnrollRequest{
		StudentIDs: []uint{students[0].ID, students[1].ID, 5555},
	}, actor)
	require.NoError(t, err)
	require.Equal(t, []uint{students[1].ID}, result.Successful)
	require.Equal(t, []dto.BulkEnrollFailure{
		{StudentID: students[0].ID, Reason: apperror.CodeAlreadyEnrolled},
		{StudentID: 5555, Reason: "student not found"},
	}, result.Failed)

	_, err = svc.BulkEnroll(context.Background(), 999, dto.BulkEnrollRequest{StudentIDs: []uint{students[1].ID}}, actor)
	require.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = svc.BulkEnroll(context.Background(), fixture.Instance.ID, dto.BulkEnrollRequest{}, actor)
	require.Error(t, err)
}

func TestEnrollmentBulkEnrollStopsAtCapacity(t *testing.T) {
	db, svc, _, _ := setupEnrollments(t, nil)
	fixture := seedCourse(t, db, true, ptrInt(2))
	students := seedStudents(t, db, 3)

	result, err := svc.BulkEnroll(context.Background(), fixture.Instance.ID, dto.BulkEnrollRequest{
		StudentIDs: []uint{students[0].ID, students[1].ID, students[2].ID},
	}, ActivityActor{ID: 1, Role: "instructor"})
	require.NoError(t, err)
	require.Equal(t, []uint{students[0].ID, students[1].ID}, result.Successful)
	require.Len(t, result.Failed, 1)
	require.Equal(t, apperror.CodeCapacityExceeded, result.Failed[0].Reason)
}

func TestEnrollmentDropAndReenrollReusesRow(t *testing.T) {
	db, svc, _, notifier := setupEnrollments(t, nil)
	fixture := seedCourse(t, db, true, ptrInt(1))
	students := seedStudents(t, db, 2)
	owner := ActivityActor{ID: students[0].ID, Role: "student"}

	enrolled, err := svc.Enroll(context.Background(), fixture.Instance.ID, students[0].ID, owner)
	require.NoError(t, err)

	_, err = svc.Drop(context.Background(), enrolled.ID, ActivityActor{ID: students[1].ID, Role: "student"})
	require.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	dropped, err := svc.Drop(context.Background(), enrolled.ID, owner)
	require.NoError(t, err)
	require.Equal(t, string(models.EnrollmentStatusDropped), dropped.Status)
	require.NotNil(t, dropped.DroppedAt)

	_, err = svc.Drop(context.Background(), enrolled.ID, owner)
	require.Equal(t, apperror.KindInvalidState, apperror.KindOf(err))

	// The freed seat is usable and the original row comes back.
	again, err := svc.Enroll(context.Background(), fixture.Instance.ID, students[0].ID, owner)
	require.NoError(t, err)
	require.Equal(t, enrolled.ID, again.ID)
	require.Nil(t, again.DroppedAt)

	var rows int64
	require.NoError(t, db.Model(&models.Enrollment{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)

	require.Equal(t, []string{EventStudentEnrolled, EventStudentDropped, EventStudentEnrolled}, notifier.types())
}

func TestEnrollmentCompletedIsTerminal(t *testing.T) {
	db, svc, _, _ := setupEnrollments(t, stubFinalGrades{grade: 87.5})
	fixture := seedCourse(t, db, true, nil)
	student := seedStudents(t, db, 1)[0]
	instructor := ActivityActor{ID: 1, Role: "instructor"}

	enrolled, err := svc.Enroll(context.Background(), fixture.Instance.ID, student.ID, instructor)
	require.NoError(t, err)

	completed, err := svc.UpdateStatus(context.Background(), enrolled.ID, dto.EnrollmentStatusRequest{Status: "completed"}, instructor)
	require.NoError(t, err)
	require.Equal(t, string(models.EnrollmentStatusCompleted), completed.Status)
	require.NotNil(t, completed.FinalGrade)
	require.Equal(t, 87.5, *completed.FinalGrade)

	_, err = svc.UpdateStatus(context.Background(), enrolled.ID, dto.EnrollmentStatusRequest{Status: "dropped"}, instructor)
	require.Equal(t, apperror.KindInvalidState, apperror.KindOf(err))

	_, err = svc.Enroll(context.Background(), fixture.Instance.ID, student.ID, instructor)
	require.Equal(t, apperror.CodeEnrollmentCompleted, apperror.CodeOf(err))

	_, err = svc.UpdateStatus(context.Background(), enrolled.ID, dto.EnrollmentStatusRequest{Status: "enrolled"}, instructor)
	require.Equal(t, apperror.KindInvalidState, apperror.KindOf(err))

	stored, err := svc.Get(context.Background(), enrolled.ID)
	require.NoError(t, err)
	require.Equal(t, 87.5, *stored.FinalGrade)
}

func TestEnrollmentListByInstanceFiltersStatus(t *testing.T) {
	db, svc, _, _ := setupEnrollments(t, nil)
	fixture := seedCourse(t, db, true, nil)
	students := seedStudents(t, db, 3)
	actor := ActivityActor{ID: 1, Role: "instructor"}

	var firstID uint
	for i, student := range students {
		enrolled, err := svc.Enroll(context.Background(), fixture.Instance.ID, student.ID, actor)
		require.NoError(t, err)
		if i == 0 {
			firstID = enrolled.ID
		}
	}
	_, err := svc.Drop(context.Background(), firstID, actor)
	require.NoError(t, err)

	all, err := svc.ListByInstance(context.Background(), fixture.Instance.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	status := models.EnrollmentStatusEnrolled
	active, err := svc.ListByInstance(context.Background(), fixture.Instance.ID, &status)
	require.NoError(t, err)
	require.Len(t, active, 2)

	_, err = svc.ListByInstance(context.Background(), 321, nil)
	require.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestEnrollmentRecomputeFinalGrade(t *testing.T) {
	db, svc, _, _ := setupEnrollments(t, stubFinalGrades{grade: 64})
	fixture := seedCourse(t, db, true, nil)
	student := seedStudents(t, db, 1)[0]

	_, err := svc.RecomputeFinalGrade(context.Background(), fixture.Instance.ID, student.ID)
	require.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = svc.Enroll(context.Background(), fixture.Instance.ID, student.ID, ActivityActor{ID: student.ID, Role: "student"})
	require.NoError(t, err)

	updated, err := svc.RecomputeFinalGrade(context.Background(), fixture.Instance.ID, student.ID)
	require.NoError(t, err)
	require.Equal(t, 64.0, *updated.FinalGrade)
}
