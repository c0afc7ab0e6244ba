package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

// ReferenceRepository reads the immutable inputs of a solve: courses, teachers, classrooms and time slots.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListCourses returns courses ordered by id. An empty ids slice returns every course.
func (r *ReferenceRepository) ListCourses(ctx context.Context, ids []string) ([]models.Course, error) {
	query := `SELECT id, code, name, weekly_hours, sessions_per_week, max_students, room_category, required_equipment, qualified_teacher_ids, priority, created_at, updated_at
FROM courses`
	var args []interface{}
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY id ASC`

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListTeachers returns teachers ordered by id with preferred slots decoded.
func (r *ReferenceRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT id, full_name, max_weekly_hours, max_daily_hours, qualified_course_ids, preferred_slots, created_at, updated_at
FROM teachers ORDER BY id ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	for i := range teachers {
		if !hasPreferences(teachers[i].PreferredRaw) {
			continue
		}
		if err := teachers[i].PreferredRaw.Unmarshal(&teachers[i].PreferredSlots); err != nil {
			return nil, fmt.Errorf("decode preferred slots for teacher %s: %w", teachers[i].ID, err)
		}
	}
	return teachers, nil
}

// ListClassrooms returns classrooms ordered by id.
func (r *ReferenceRepository) ListClassrooms(ctx context.Context) ([]models.Classroom, error) {
	const query = `SELECT id, name, capacity, category, equipment, building, floor, created_at, updated_at
FROM classrooms ORDER BY id ASC`
	var classrooms []models.Classroom
	if err := r.db.SelectContext(ctx, &classrooms, query); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	return classrooms, nil
}

// ListTimeSlots returns time slots in their ordinal order.
func (r *ReferenceRepository) ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error) {
	const query = `SELECT id, slot_order, start_time, end_time FROM time_slots ORDER BY slot_order ASC, id ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// NULL columns scan as "{}" so only a JSON array carries preferences.
func hasPreferences(raw types.JSONText) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "[")
}
