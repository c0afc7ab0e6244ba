package models

import (
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

// CoursePriority orders courses for placement; higher values are placed first.
type CoursePriority int

const (
	PriorityPublic   CoursePriority = 1
	PriorityElective CoursePriority = 2
	PriorityRequired CoursePriority = 3
)

// String returns the lowercase label used in payloads and fixtures.
func (p CoursePriority) String() string {
	switch p {
	case PriorityRequired:
		return "required"
	case PriorityElective:
		return "elective"
	case PriorityPublic:
		return "public"
	default:
		return "unknown"
	}
}

// ParseCoursePriority maps a label back to a priority. Unknown labels fall back to public.
func ParseCoursePriority(raw string) CoursePriority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "required", "3":
		return PriorityRequired
	case "elective", "2":
		return PriorityElective
	default:
		return PriorityPublic
	}
}

// UnmarshalYAML accepts either a label such as "required" or the numeric value.
func (p *CoursePriority) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = ParseCoursePriority(raw)
	return nil
}

// MarshalYAML writes the label form.
func (p CoursePriority) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Course is a unit of teaching demand that must be placed N times per week.
type Course struct {
	ID                  string         `db:"id" json:"id" yaml:"id" validate:"required"`
	Code                string         `db:"code" json:"code" yaml:"code"`
	Name                string         `db:"name" json:"name" yaml:"name"`
	WeeklyHours         float64        `db:"weekly_hours" json:"weekly_hours" yaml:"weekly_hours" validate:"gt=0"`
	SessionsPerWeek     int            `db:"sessions_per_week" json:"sessions_per_week" yaml:"sessions_per_week" validate:"min=0"`
	MaxStudents         int            `db:"max_students" json:"max_students" yaml:"max_students" validate:"min=0"`
	RoomCategory        string         `db:"room_category" json:"room_category" yaml:"room_category"`
	RequiredEquipment   pq.StringArray `db:"required_equipment" json:"required_equipment" yaml:"required_equipment"`
	QualifiedTeacherIDs pq.StringArray `db:"qualified_teacher_ids" json:"qualified_teacher_ids" yaml:"qualified_teacher_ids"`
	Priority            CoursePriority `db:"priority" json:"priority" yaml:"priority"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at" yaml:"-"`
}

// Sessions returns how many weekly sessions the course needs.
func (c Course) Sessions() int {
	if c.SessionsPerWeek > 0 {
		return c.SessionsPerWeek
	}
	n := int(math.Round(c.WeeklyHours))
	if n < 1 {
		return 1
	}
	return n
}

// SessionHours is the teaching load carried by a single session.
func (c Course) SessionHours() float64 {
	return c.WeeklyHours / float64(c.Sessions())
}

// ListsTeacher reports whether the course names the teacher as qualified.
func (c Course) ListsTeacher(teacherID string) bool {
	for _, id := range c.QualifiedTeacherIDs {
		if id == teacherID {
			return true
		}
	}
	return false
}
