package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

func TestAssignmentRepositoryUpsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WithArgs("term-1-math-1", "run-1", "term-1", "math", "t1", "r1", 1, "s1", 1, 88.5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WithArgs("term-1-math-2", "run-1", "term-1", "math", "t1", "r1", 2, "s1", 2, 90.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assignments := []models.Assignment{
		{ID: "term-1-math-1", RunID: "run-1", TermID: "term-1", CourseID: "math", TeacherID: "t1", ClassroomID: "r1", DayOfWeek: 1, TimeSlotID: "s1", Session: 1, SoftScore: 88.5},
		{ID: "term-1-math-2", RunID: "run-1", TermID: "term-1", CourseID: "math", TeacherID: "t1", ClassroomID: "r1", DayOfWeek: 2, TimeSlotID: "s1", Session: 2, SoftScore: 90},
	}

	require.NoError(t, repo.UpsertBatch(context.Background(), nil, assignments))
	assert.False(t, assignments[0].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUpsertBatchRequiresRun(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	err := repo.UpsertBatch(context.Background(), nil, []models.Assignment{{ID: "a1"}})
	assert.Error(t, err)
	require.NoError(t, repo.UpsertBatch(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListByRun(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "term_id", "course_id", "teacher_id", "classroom_id", "day_of_week", "time_slot_id", "session", "soft_score", "created_at"}).
		AddRow("term-1-math-1", "run-1", "term-1", "math", "t1", "r1", 1, "s1", 1, 88.5, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, run_id, term_id, course_id, teacher_id, classroom_id, day_of_week, time_slot_id, session, soft_score, created_at FROM timetable_assignments WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	assignments, err := repo.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "r1", assignments[0].ClassroomID)
	assert.InDelta(t, 88.5, assignments[0].SoftScore, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteByRun(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_assignments WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, repo.DeleteByRun(context.Background(), nil, "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
