package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// SlotRef points at a (day, time slot) cell of the weekly grid.
type SlotRef struct {
	DayOfWeek  int    `json:"day_of_week" yaml:"day_of_week"`
	TimeSlotID string `json:"time_slot_id" yaml:"time_slot_id"`
}

// Teacher represents an instructor and their workload caps. Zero caps mean uncapped.
type Teacher struct {
	ID                 string         `db:"id" json:"id" yaml:"id" validate:"required"`
	FullName           string         `db:"full_name" json:"full_name" yaml:"full_name"`
	MaxWeeklyHours     float64        `db:"max_weekly_hours" json:"max_weekly_hours" yaml:"max_weekly_hours" validate:"min=0"`
	MaxDailyHours      float64        `db:"max_daily_hours" json:"max_daily_hours" yaml:"max_daily_hours" validate:"min=0"`
	QualifiedCourseIDs pq.StringArray `db:"qualified_course_ids" json:"qualified_course_ids" yaml:"qualified_course_ids"`
	PreferredSlots     []SlotRef      `db:"-" json:"preferred_slots,omitempty" yaml:"preferred_slots"`
	PreferredRaw       types.JSONText `db:"preferred_slots" json:"-" yaml:"-"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at" yaml:"-"`
}

// ListsCourse reports whether the teacher declares the course among their qualifications.
func (t Teacher) ListsCourse(courseID string) bool {
	for _, id := range t.QualifiedCourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// Prefers reports whether the slot is in the teacher's preferred set.
func (t Teacher) Prefers(day int, slotID string) bool {
	for _, ref := range t.PreferredSlots {
		if ref.DayOfWeek == day && ref.TimeSlotID == slotID {
			return true
		}
	}
	return false
}
