package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

func newTestEngine(mutate func(*Options)) *Engine {
	opts := DefaultOptions()
	opts.Budget = 0
	if mutate != nil {
		mutate(&opts)
	}
	return NewEngine(opts, nil)
}

func TestSolveSingleSlotContention(t *testing.T) {
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{course("c2", 1, 1, 20, "t1"), course("c1", 1, 1, 20, "t1")},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 30, "")},
		TimeSlots:  slots(1),
		Days:       []int{1},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusPartial, result.Status)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "c1", result.Assignments[0].CourseID)
	assert.Equal(t, "term-c1-1", result.Assignments[0].ID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "c2", result.Failed[0].CourseID)
	assert.Equal(t, models.FailureNoFeasibleCandidate, result.Failed[0].Reason)
	assert.InDelta(t, 0.5, result.Metrics.SuccessRate, 1e-9)
}

func TestSolveWorkloadCapBlocksSecondCourse(t *testing.T) {
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{course("c1", 3, 3, 20, "t1"), course("c2", 3, 3, 20, "t1")},
		Teachers:   []models.Teacher{teacher("t1", 4, 0)},
		Classrooms: []models.Classroom{room("r1", 30, "")},
		TimeSlots:  slots(2),
		Days:       []int{1, 2, 3, 4, 5},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusPartial, result.Status)
	assert.Len(t, result.Assignments, 3)
	for _, a := range result.Assignments {
		assert.Equal(t, "c1", a.CourseID)
	}
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "c2", result.Failed[0].CourseID)
	assert.Equal(t, models.FailureWorkload, result.Failed[0].Reason)
}

func TestSolveAvoidsUndersizedClassroom(t *testing.T) {
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{course("c1", 2, 2, 40, "t1")},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("small", 30, ""), room("big", 50, "")},
		TimeSlots:  slots(2),
		Days:       []int{1, 2},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusCompleted, result.Status)
	require.Len(t, result.Assignments, 2)
	for _, a := range result.Assignments {
		assert.Equal(t, "big", a.ClassroomID)
	}
}

func TestSolveCourseLargerThanEveryClassroom(t *testing.T) {
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{course("huge", 1, 1, 500, "t1"), course("ok", 1, 1, 20, "t1")},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 30, "")},
		TimeSlots:  slots(1),
		Days:       []int{1},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusPartial, result.Status)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "huge", result.Failed[0].CourseID)
	assert.Equal(t, models.FailureCapacity, result.Failed[0].Reason)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "ok", result.Assignments[0].CourseID)
}

func TestSolveSchoolFixtureHoldsInvariants(t *testing.T) {
	ref := schoolFixture()
	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusCompleted, result.Status)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1.0, result.Metrics.SuccessRate)

	teacherCells := map[string]string{}
	roomCells := map[string]string{}
	weekly := map[string]float64{}
	type teacherDay struct {
		teacher string
		day     int
	}
	daily := map[teacherDay]float64{}
	perCourse := map[string]map[int]bool{}
	courseTeacher := map[string]string{}
	courses := map[string]models.Course{}
	for _, c := range ref.Courses {
		courses[c.ID] = c
	}
	teachers := map[string]models.Teacher{}
	for _, tc := range ref.Teachers {
		teachers[tc.ID] = tc
	}

	for _, a := range result.Assignments {
		c := courses[a.CourseID]
		tkey := fmt.Sprintf("%s|%d|%s", a.TeacherID, a.DayOfWeek, a.TimeSlotID)
		rkey := fmt.Sprintf("%s|%d|%s", a.ClassroomID, a.DayOfWeek, a.TimeSlotID)
		assert.Empty(t, teacherCells[tkey], "teacher double booked at %s", tkey)
		assert.Empty(t, roomCells[rkey], "classroom double booked at %s", rkey)
		teacherCells[tkey] = a.ID
		roomCells[rkey] = a.ID

		weekly[a.TeacherID] += c.SessionHours()
		daily[teacherDay{a.TeacherID, a.DayOfWeek}] += c.SessionHours()

		if perCourse[a.CourseID] == nil {
			perCourse[a.CourseID] = map[int]bool{}
		}
		assert.False(t, perCourse[a.CourseID][a.DayOfWeek], "course %s meets twice on day %d", a.CourseID, a.DayOfWeek)
		perCourse[a.CourseID][a.DayOfWeek] = true

		if prev, ok := courseTeacher[a.CourseID]; ok {
			assert.Equal(t, prev, a.TeacherID)
		}
		courseTeacher[a.CourseID] = a.TeacherID

		assert.Contains(t, []string(c.QualifiedTeacherIDs), a.TeacherID)
		assert.GreaterOrEqual(t, a.SoftScore, 0.0)
		assert.LessOrEqual(t, a.SoftScore, 100.0)
	}

	for id, hours := range weekly {
		assert.LessOrEqual(t, hours, teachers[id].MaxWeeklyHours+1e-9, "teacher %s weekly hours", id)
	}
	for key, hours := range daily {
		assert.LessOrEqual(t, hours, teachers[key.teacher].MaxDailyHours+1e-9, "teacher %s daily hours on %d", key.teacher, key.day)
	}
	for _, c := range ref.Courses {
		assert.Len(t, perCourse[c.ID], c.Sessions(), "course %s session count", c.ID)
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	first, err := newTestEngine(nil).Solve(context.Background(), schoolFixture())
	require.NoError(t, err)
	second, err := newTestEngine(nil).Solve(context.Background(), schoolFixture())
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Failed, second.Failed)
	assert.Equal(t, first.Metrics, second.Metrics)
}

func TestSolveHonoursCourseOrdering(t *testing.T) {
	low := course("a-public", 1, 1, 20, "t1")
	low.Priority = models.PriorityPublic
	high := course("z-required", 1, 1, 20, "t1")
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{low, high},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 30, "")},
		TimeSlots:  slots(1),
		Days:       []int{1},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "z-required", result.Assignments[0].CourseID)
}

func TestOrderCourses(t *testing.T) {
	a := course("a", 1, 1, 10)
	b := course("b", 1, 1, 30)
	c := course("c", 1, 1, 30)
	d := course("d", 1, 1, 50)
	d.Priority = models.PriorityElective

	ordered := OrderCourses([]models.Course{d, c, a, b})
	ids := []string{ordered[0].ID, ordered[1].ID, ordered[2].ID, ordered[3].ID}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestSolveStructuralErrors(t *testing.T) {
	engine := newTestEngine(nil)

	tests := []struct {
		name    string
		mutate  func(*ReferenceData)
		message string
	}{
		{"no courses", func(r *ReferenceData) { r.Courses = nil }, "no courses supplied"},
		{"no classrooms", func(r *ReferenceData) { r.Classrooms = nil }, "no classrooms supplied"},
		{"no slots", func(r *ReferenceData) { r.TimeSlots = nil }, "no time slots supplied"},
		{"bad days", func(r *ReferenceData) { r.Days = []int{0, 9} }, "no teaching days configured"},
		{"unqualified course", func(r *ReferenceData) { r.Courses = append(r.Courses, course("orphan", 1, 1, 10, "ghost")) }, "course orphan has no qualified teacher"},
		{"duplicate teacher", func(r *ReferenceData) { r.Teachers = append(r.Teachers, teacher("t1", 0, 0)) }, "duplicate teacher id t1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ref := schoolFixture()
			tc.mutate(&ref)

			result, err := engine.Solve(context.Background(), ref)
			assert.Nil(t, result)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, appErrors.ErrStructural.Code, appErr.Code)
			assert.Contains(t, appErr.Message, tc.message)
		})
	}
}

func TestSolveRejectsNegativeWeights(t *testing.T) {
	engine := newTestEngine(func(o *Options) { o.Registry.Weights = Weights{Time: 1, RoomMatch: -1} })
	_, err := engine.Solve(context.Background(), schoolFixture())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidWeights.Code, appErr.Code)
}

func TestSolveExpiredBudgetFailsRemainingCourses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ref := schoolFixture()
	result, err := newTestEngine(nil).Solve(ctx, ref)
	require.NoError(t, err)

	assert.True(t, result.BudgetExceeded)
	assert.Equal(t, models.SolveStatusPartial, result.Status)
	assert.Empty(t, result.Assignments)
	require.Len(t, result.Failed, len(ref.Courses))
	for _, f := range result.Failed {
		assert.Equal(t, models.FailureBudgetExceeded, f.Reason)
	}
}

func TestSolveFallbackPlacementsAreCounted(t *testing.T) {
	engine := newTestEngine(func(o *Options) {
		o.Selector.AcceptanceThreshold = 100
		o.MaxReoptimizePasses = 0
	})
	result, err := engine.Solve(context.Background(), schoolFixture())
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusCompleted, result.Status)
	assert.Equal(t, result.Metrics.TotalAssignments, result.Metrics.FallbackPlacements)
}

func TestReoptimizeNeverLowersAverageScore(t *testing.T) {
	greedy, err := newTestEngine(func(o *Options) { o.MaxReoptimizePasses = 0 }).Solve(context.Background(), schoolFixture())
	require.NoError(t, err)

	tuned, err := newTestEngine(func(o *Options) {
		o.MaxReoptimizePasses = 2
		o.ReoptimizeBelow = 100
	}).Solve(context.Background(), schoolFixture())
	require.NoError(t, err)

	assert.Equal(t, greedy.Metrics.TotalAssignments, tuned.Metrics.TotalAssignments)
	assert.GreaterOrEqual(t, tuned.Metrics.AverageSoftScore, greedy.Metrics.AverageSoftScore)
	assert.Zero(t, greedy.Metrics.ReoptimizedCourses)
}

func TestSolveNeverUsesTeacherOutsideCourseList(t *testing.T) {
	outsider := teacher("t2", 0, 0)
	outsider.QualifiedCourseIDs = []string{"c1"}
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{course("c1", 1, 1, 20, "t1")},
		Teachers:   []models.Teacher{teacher("t1", 0.5, 0), outsider},
		Classrooms: []models.Classroom{room("r1", 30, "")},
		TimeSlots:  slots(2),
		Days:       []int{1, 2},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Empty(t, result.Assignments)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, models.FailureWorkload, result.Failed[0].Reason)
}

func TestSolveMoreSessionsThanDays(t *testing.T) {
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{course("c1", 6, 0, 20, "t1")},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 30, "")},
		TimeSlots:  slots(8),
		Days:       []int{1, 2, 3, 4, 5},
	}

	result, err := newTestEngine(nil).Solve(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, models.SolveStatusPartial, result.Status)
	require.Len(t, result.Failed, 1)
	failure := result.Failed[0]
	assert.Equal(t, models.FailureTooFewDays, failure.Reason)
	assert.Equal(t, ViolationSameDay, failure.Kind)
	assert.Equal(t, 6, failure.SessionsNeeded)
	assert.Equal(t, 1, failure.CandidatesExamined)
}

func TestSolveBudgetOnlyStopsBetweenCourses(t *testing.T) {
	ref := ReferenceData{
		TermID:     "term",
		Classrooms: []models.Classroom{room("r1", 40, ""), room("r2", 40, ""), room("r3", 40, "")},
		TimeSlots:  slots(8),
		Days:       []int{1, 2, 3, 4, 5},
	}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("t%02d", i)
		ref.Teachers = append(ref.Teachers, teacher(id, 0, 0))
	}
	for i := 0; i < 60; i++ {
		ref.Courses = append(ref.Courses, course(fmt.Sprintf("c%02d", i), 3, 3, 30, fmt.Sprintf("t%02d", i%12)))
	}

	engine := newTestEngine(func(o *Options) {
		o.Budget = 2 * time.Millisecond
		o.MaxReoptimizePasses = 0
	})
	result, err := engine.Solve(context.Background(), ref)
	require.NoError(t, err)

	for _, f := range result.Failed {
		if f.Reason != models.FailureBudgetExceeded {
			continue
		}
		assert.Equal(t, KindBudget, f.Kind)
		assert.Zero(t, f.CandidatesExamined, "course %s was abandoned mid-selection", f.CourseID)
		assert.Zero(t, f.SessionsPlaced)
	}
}
