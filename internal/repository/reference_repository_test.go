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

func TestReferenceRepositoryListCoursesFiltered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "weekly_hours", "sessions_per_week", "max_students", "room_category", "required_equipment", "qualified_teacher_ids", "priority", "created_at", "updated_at"}).
		AddRow("chem", "CH-1", "Chemistry", 3.0, 3, 28, "lab", "{goggles,sink}", "{t1,t2}", 3, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = ANY($1) ORDER BY id ASC")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	courses, err := repo.ListCourses(context.Background(), []string{"chem"})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, []string{"goggles", "sink"}, []string(courses[0].RequiredEquipment))
	assert.True(t, courses[0].ListsTeacher("t2"))
	assert.Equal(t, models.PriorityRequired, courses[0].Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryListCoursesAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "weekly_hours", "sessions_per_week", "max_students", "room_category", "required_equipment", "qualified_teacher_ids", "priority", "created_at", "updated_at"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses ORDER BY id ASC")).
		WillReturnRows(rows)

	courses, err := repo.ListCourses(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, courses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryListTeachersDecodesPreferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "full_name", "max_weekly_hours", "max_daily_hours", "qualified_course_ids", "preferred_slots", "created_at", "updated_at"}).
		AddRow("t1", "Ana", 18.0, 6.0, "{chem}", []byte(`[{"day_of_week":1,"time_slot_id":"s2"}]`), time.Now(), time.Now()).
		AddRow("t2", "Budi", 0.0, 0.0, "{}", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers ORDER BY id ASC")).WillReturnRows(rows)

	teachers, err := repo.ListTeachers(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.True(t, teachers[0].Prefers(1, "s2"))
	assert.True(t, teachers[0].ListsCourse("chem"))
	assert.Empty(t, teachers[1].PreferredSlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRepositoryListTeachersRejectsBadPreferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "full_name", "max_weekly_hours", "max_daily_hours", "qualified_course_ids", "preferred_slots", "created_at", "updated_at"}).
		AddRow("t1", "Ana", 18.0, 6.0, "{}", []byte(`[{broken`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers ORDER BY id ASC")).WillReturnRows(rows)

	_, err := repo.ListTeachers(context.Background())
	assert.Error(t, err)
}

func TestReferenceRepositoryListClassroomsAndSlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM classrooms ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "category", "equipment", "building", "floor", "created_at", "updated_at"}).
			AddRow("lab-1", "Lab 1", 30, "lab", "{projector}", "A", 2, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, slot_order, start_time, end_time FROM time_slots ORDER BY slot_order ASC, id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slot_order", "start_time", "end_time"}).
			AddRow("s1", 1, "07:30", "08:15").
			AddRow("s2", 2, "08:15", "09:00"))

	rooms, err := repo.ListClassrooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.True(t, rooms[0].HasEquipment("projector"))

	slots, err := repo.ListTimeSlots(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 7, slots[0].StartHour())
	assert.NoError(t, mock.ExpectationsWereMet())
}
