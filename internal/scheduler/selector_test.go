package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

func TestSelectorPlacesSessionsOnDistinctDaysWithOneTeacher(t *testing.T) {
	c := course("c1", 3, 3, 20, "t1", "t2")
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{c},
		Teachers:   []models.Teacher{teacher("t1", 0, 0), teacher("t2", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 25, "")},
		TimeSlots:  slots(2),
		Days:       []int{1, 2, 3, 4, 5},
	}
	sel := NewSelector(NewRegistry(ref, RegistryOptions{}), DefaultSelectorOptions())

	selection, failure := sel.Select(context.Background(), c, NewIndex("term"))
	require.Nil(t, failure)
	require.Len(t, selection.Sessions, 3)

	days := map[int]bool{}
	for _, s := range selection.Sessions {
		assert.Equal(t, selection.TeacherID, s.TeacherID)
		assert.False(t, days[s.Day], "day %d used twice", s.Day)
		days[s.Day] = true
	}
	assert.Positive(t, selection.Examined)
}

func TestSelectorFallsBackWhenNothingMeetsThreshold(t *testing.T) {
	c := course("c1", 1, 1, 20, "t1")
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{c},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 25, "")},
		TimeSlots:  slots(1),
		Days:       []int{1},
	}
	opts := DefaultSelectorOptions()
	opts.AcceptanceThreshold = 99
	sel := NewSelector(NewRegistry(ref, RegistryOptions{}), opts)

	selection, failure := sel.Select(context.Background(), c, NewIndex("term"))
	require.Nil(t, failure)
	require.Len(t, selection.Sessions, 1)
	assert.False(t, selection.Sessions[0].Accepted)
	assert.Equal(t, 1, selection.Fallbacks)
}

func TestSelectorRespectsConsecutiveLimit(t *testing.T) {
	c := course("c1", 1, 1, 20, "t1")
	ref := ReferenceData{
		TermID:     "term",
		Courses:    []models.Course{c},
		Teachers:   []models.Teacher{teacher("t1", 0, 0)},
		Classrooms: []models.Classroom{room("r1", 25, "")},
		TimeSlots:  slots(3),
		Days:       []int{1},
	}
	idx := NewIndex("term")
	require.NoError(t, idx.Commit(models.Assignment{ID: "x1", TeacherID: "t1", ClassroomID: "r1", DayOfWeek: 1, TimeSlotID: "s1"}, 1))
	require.NoError(t, idx.Commit(models.Assignment{ID: "x2", TeacherID: "t1", ClassroomID: "r1", DayOfWeek: 1, TimeSlotID: "s2"}, 1))

	sel := NewSelector(NewRegistry(ref, RegistryOptions{}), DefaultSelectorOptions())
	selection, failure := sel.Select(context.Background(), c, idx)
	assert.Nil(t, selection)
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureNoFeasibleCandidate, failure.Reason)
	assert.Equal(t, 1, failure.ViolationCounts[ViolationConsecutiveLimit])
}

func TestSelectorFailureReasons(t *testing.T) {
	base := ReferenceData{
		TermID:    "term",
		Teachers:  []models.Teacher{teacher("t1", 2, 0)},
		TimeSlots: slots(2),
		Days:      []int{1, 2},
	}

	t.Run("capacity", func(t *testing.T) {
		ref := base
		ref.Classrooms = []models.Classroom{room("r1", 10, "")}
		c := course("c1", 1, 1, 20, "t1")
		sel := NewSelector(NewRegistry(ref, RegistryOptions{}), DefaultSelectorOptions())
		_, failure := sel.Select(context.Background(), c, NewIndex("term"))
		require.NotNil(t, failure)
		assert.Equal(t, models.FailureCapacity, failure.Reason)
		assert.Equal(t, ViolationCapacity, failure.Kind)
	})

	t.Run("room category", func(t *testing.T) {
		ref := base
		ref.Classrooms = []models.Classroom{room("r1", 40, "general"), room("r2", 5, "lab")}
		c := course("c1", 1, 1, 20, "t1")
		c.RoomCategory = "lab"
		sel := NewSelector(NewRegistry(ref, RegistryOptions{}), DefaultSelectorOptions())
		_, failure := sel.Select(context.Background(), c, NewIndex("term"))
		require.NotNil(t, failure)
		assert.Equal(t, models.FailureRoomCategory, failure.Reason)
	})

	t.Run("workload", func(t *testing.T) {
		ref := base
		ref.Classrooms = []models.Classroom{room("r1", 40, "")}
		c := course("c1", 3, 3, 20, "t1")
		sel := NewSelector(NewRegistry(ref, RegistryOptions{}), DefaultSelectorOptions())
		_, failure := sel.Select(context.Background(), c, NewIndex("term"))
		require.NotNil(t, failure)
		assert.Equal(t, models.FailureWorkload, failure.Reason)
		assert.Equal(t, 3, failure.SessionsNeeded)
		assert.NotEmpty(t, failure.BestAttemptViolations)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ref := base
		ref.Classrooms = []models.Classroom{room("r1", 40, "")}
		c := course("c1", 1, 1, 20, "t1")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sel := NewSelector(NewRegistry(ref, RegistryOptions{}), DefaultSelectorOptions())
		_, failure := sel.Select(ctx, c, NewIndex("term"))
		require.NotNil(t, failure)
		assert.Equal(t, models.FailureBudgetExceeded, failure.Reason)
	})
}

func TestSortCandidatesTieBreaks(t *testing.T) {
	candidates := []Candidate{
		{TeacherID: "t1", ClassroomID: "r2", Day: 1, Slot: models.TimeSlot{Order: 1}, Score: SoftScore{Total: 80}, Utilization: 0.8},
		{TeacherID: "t1", ClassroomID: "r1", Day: 1, Slot: models.TimeSlot{Order: 1}, Score: SoftScore{Total: 80}, Utilization: 0.8},
		{TeacherID: "t1", ClassroomID: "r0", Day: 1, Slot: models.TimeSlot{Order: 1}, Score: SoftScore{Total: 80}, Utilization: 0.5},
		{TeacherID: "t2", ClassroomID: "r9", Day: 2, Slot: models.TimeSlot{Order: 3}, Score: SoftScore{Total: 90}, Utilization: 0.2},
		{TeacherID: "t0", ClassroomID: "r1", Day: 2, Slot: models.TimeSlot{Order: 1}, Score: SoftScore{Total: 80}, Utilization: 0.8},
	}
	sortCandidates(candidates)

	got := make([]string, 0, len(candidates))
	for _, c := range candidates {
		got = append(got, c.TeacherID+"/"+c.ClassroomID)
	}
	assert.Equal(t, []string{"t2/r9", "t0/r1", "t1/r1", "t1/r2", "t1/r0"}, got)
}
