package conflictgen

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-timetable/internal/audit"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
)

func reference() scheduler.ReferenceData {
	course := func(id, teacher string) models.Course {
		return models.Course{ID: id, WeeklyHours: 2, SessionsPerWeek: 2, MaxStudents: 20, QualifiedTeacherIDs: pq.StringArray{teacher}}
	}
	return scheduler.ReferenceData{
		TermID:   "term",
		Courses:  []models.Course{course("math", "t1"), course("bio", "t2"), course("art", "t3")},
		Teachers: []models.Teacher{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}},
		Classrooms: []models.Classroom{
			{ID: "r1", Capacity: 30},
			{ID: "r2", Capacity: 30},
			{ID: "r3", Capacity: 30},
			{ID: "small", Capacity: 10},
		},
		TimeSlots: []models.TimeSlot{
			{ID: "s1", Order: 1, StartTime: "08:00", EndTime: "09:00"},
			{ID: "s2", Order: 2, StartTime: "09:00", EndTime: "10:00"},
			{ID: "s3", Order: 3, StartTime: "10:00", EndTime: "11:00"},
		},
		Days: []int{1, 2, 3},
	}
}

func schedule() []models.Assignment {
	return []models.Assignment{
		{ID: "a1", TermID: "term", CourseID: "math", TeacherID: "t1", ClassroomID: "r1", DayOfWeek: 1, TimeSlotID: "s1", Session: 1},
		{ID: "a2", TermID: "term", CourseID: "math", TeacherID: "t1", ClassroomID: "r2", DayOfWeek: 2, TimeSlotID: "s1", Session: 2},
		{ID: "a3", TermID: "term", CourseID: "bio", TeacherID: "t2", ClassroomID: "r2", DayOfWeek: 1, TimeSlotID: "s1", Session: 1},
		{ID: "a4", TermID: "term", CourseID: "bio", TeacherID: "t2", ClassroomID: "r3", DayOfWeek: 2, TimeSlotID: "s2", Session: 2},
		{ID: "a5", TermID: "term", CourseID: "art", TeacherID: "t3", ClassroomID: "r3", DayOfWeek: 1, TimeSlotID: "s2", Session: 1},
		{ID: "a6", TermID: "term", CourseID: "art", TeacherID: "t3", ClassroomID: "r1", DayOfWeek: 3, TimeSlotID: "s3", Session: 2},
	}
}

func auditFindings(t *testing.T, ref scheduler.ReferenceData, assignments []models.Assignment) []ExpectedViolation {
	t.Helper()
	report, err := audit.New(scheduler.RegistryOptions{}, nil).Audit(context.Background(), ref, assignments)
	require.NoError(t, err)
	found := make([]ExpectedViolation, 0, len(report.Violations))
	for _, v := range report.Violations {
		found = append(found, ExpectedViolation{Type: v.Type, EntityIDs: v.EntityIDs})
	}
	return found
}

func TestFixtureStartsClean(t *testing.T) {
	assert.Empty(t, auditFindings(t, reference(), schedule()))
}

func TestBasicInjectionIntroducesExactlyOneConflict(t *testing.T) {
	ref := reference()
	seen := map[string]bool{}
	for seed := int64(1); seed <= 25; seed++ {
		injector := New(seed, scheduler.RegistryOptions{}, nil)
		original := schedule()

		injection, err := injector.Inject(LevelBasic, ref, original)
		require.NoError(t, err)
		require.True(t, injection.Exact)
		require.Len(t, injection.Expected, 1)
		seen[injection.Scenario.Type] = true

		found := auditFindings(t, ref, injection.Assignments)
		assert.Equal(t, injection.Expected, found, "seed %d scenario %s", seed, injection.Scenario.Type)
		assert.Equal(t, schedule(), original, "input must not be mutated")
	}
	assert.True(t, seen[ScenarioTeacherDoubleBooking])
	assert.True(t, seen[ScenarioClassroomDoubleBooking])
}

func TestInjectionsAreReproducibleForASeed(t *testing.T) {
	ref := reference()
	for _, level := range []Level{LevelBasic, LevelComplex, LevelExtreme} {
		first, err := New(42, scheduler.RegistryOptions{}, nil).Inject(level, ref, schedule())
		require.NoError(t, err)
		second, err := New(42, scheduler.RegistryOptions{}, nil).Inject(level, ref, schedule())
		require.NoError(t, err)
		assert.Equal(t, first, second, "level %s", level)
	}
}

func TestComplexAndExtremeFindingsAreAudited(t *testing.T) {
	ref := reference()
	for _, level := range []Level{LevelComplex, LevelExtreme} {
		for seed := int64(1); seed <= 10; seed++ {
			injection, err := New(seed, scheduler.RegistryOptions{}, nil).Inject(level, ref, schedule())
			require.NoError(t, err)
			require.NotEmpty(t, injection.Expected)
			assert.NotEmpty(t, injection.Scenario.AffectedIDs)

			found := auditFindings(t, ref, injection.Assignments)
			for _, want := range injection.Expected {
				assert.Contains(t, found, want, "level %s seed %d scenario %s", level, seed, injection.Scenario.Type)
			}
		}
	}
}

func TestCapacityOverflowTemplate(t *testing.T) {
	st := newState(New(7, scheduler.RegistryOptions{}, nil).rng, scheduler.NewRegistry(reference(), scheduler.RegistryOptions{}), schedule(), ScenarioCapacityOverflow)
	expected, ok := applyCapacityOverflow(st)
	require.True(t, ok)
	require.Len(t, expected, 1)
	assert.Equal(t, models.ConflictCapacityOverflow, expected[0].Type)

	found := auditFindings(t, reference(), st.assignments)
	assert.Equal(t, expected, found)
}

func TestDependencyChainNeedsThreeSessions(t *testing.T) {
	reg := scheduler.NewRegistry(reference(), scheduler.RegistryOptions{})
	st := newState(New(1, scheduler.RegistryOptions{}, nil).rng, reg, schedule(), ScenarioDependencyChain)
	_, ok := applyDependencyChain(st)
	assert.False(t, ok)

	assignments := append(schedule(), models.Assignment{
		ID: "a7", TermID: "term", CourseID: "math", TeacherID: "t1", ClassroomID: "r3", DayOfWeek: 3, TimeSlotID: "s1", Session: 3,
	})
	st = newState(New(1, scheduler.RegistryOptions{}, nil).rng, reg, assignments, ScenarioDependencyChain)
	expected, ok := applyDependencyChain(st)
	require.True(t, ok)
	assert.Equal(t, []ExpectedViolation{{Type: models.ConflictTeacherDoubleBooking, EntityIDs: []string{"a1", "a2", "a7"}}}, expected)
}

func TestGenerateDrawsFromLevelTemplates(t *testing.T) {
	injector := New(3, scheduler.RegistryOptions{}, nil)
	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		scenario, err := injector.Generate(LevelComplex)
		require.NoError(t, err)
		assert.Equal(t, LevelComplex, scenario.Level)
		assert.Empty(t, scenario.AffectedIDs)
		counts[scenario.Type]++
	}
	assert.Len(t, counts, 3)
	assert.Greater(t, counts[ScenarioMultiResource], counts[ScenarioDependencyChain])

	_, err := injector.Generate(Level("nightmare"))
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(" Extreme ")
	require.NoError(t, err)
	assert.Equal(t, LevelExtreme, level)

	_, err = ParseLevel("easy")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestInjectFailsWhenNothingApplies(t *testing.T) {
	_, err := New(1, scheduler.RegistryOptions{}, nil).Inject(LevelBasic, reference(), nil)
	assert.ErrorIs(t, err, ErrNotApplicable)
}
