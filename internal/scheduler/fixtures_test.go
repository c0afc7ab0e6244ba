package scheduler

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

func course(id string, hours float64, sessions, students int, teachers ...string) models.Course {
	return models.Course{
		ID:                  id,
		Name:                "Course " + id,
		WeeklyHours:         hours,
		SessionsPerWeek:     sessions,
		MaxStudents:         students,
		QualifiedTeacherIDs: pq.StringArray(teachers),
		Priority:            models.PriorityRequired,
	}
}

func teacher(id string, weekly, daily float64) models.Teacher {
	return models.Teacher{ID: id, FullName: "Teacher " + id, MaxWeeklyHours: weekly, MaxDailyHours: daily}
}

func room(id string, capacity int, category string) models.Classroom {
	return models.Classroom{ID: id, Name: "Room " + id, Capacity: capacity, Category: category, Building: "A", Floor: 1}
}

func slots(n int) []models.TimeSlot {
	result := make([]models.TimeSlot, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, models.TimeSlot{
			ID:        fmt.Sprintf("s%d", i+1),
			Order:     i + 1,
			StartTime: fmt.Sprintf("%02d:00", 8+i),
			EndTime:   fmt.Sprintf("%02d:00", 9+i),
		})
	}
	return result
}

// schoolFixture is a moderately sized instance with room to spare.
func schoolFixture() ReferenceData {
	ref := ReferenceData{
		TermID: "2025-odd",
		Teachers: []models.Teacher{
			teacher("t1", 20, 6),
			teacher("t2", 20, 6),
			teacher("t3", 12, 4),
		},
		Classrooms: []models.Classroom{
			room("r1", 36, "general"),
			room("r2", 32, "general"),
			room("lab1", 28, "lab"),
		},
		TimeSlots: slots(6),
		Days:      []int{1, 2, 3, 4, 5},
	}
	ref.Classrooms[1].Building = "B"

	maths := course("math", 4, 4, 30, "t1", "t2")
	physics := course("physics", 3, 3, 26, "t2")
	physics.RoomCategory = "lab"
	physics.RequiredEquipment = pq.StringArray{"projector"}
	ref.Classrooms[2].Equipment = pq.StringArray{"projector", "sink"}
	art := course("art", 2, 2, 20, "t3")
	art.Priority = models.PriorityElective
	history := course("history", 2, 2, 30, "t1", "t3")
	civics := course("civics", 1, 1, 25, "t3")
	civics.Priority = models.PriorityPublic

	ref.Courses = []models.Course{civics, history, art, physics, maths}
	return ref
}
