package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

// AssignmentRepository stores the assignments that belong to a timetable run.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository builds repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertBatch inserts or updates the assignments of a run keyed by (run, course, session).
func (r *AssignmentRepository) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_assignments (id, run_id, term_id, course_id, teacher_id, classroom_id, day_of_week, time_slot_id, session, soft_score, created_at)
VALUES (:id, :run_id, :term_id, :course_id, :teacher_id, :classroom_id, :day_of_week, :time_slot_id, :session, :soft_score, :created_at)
ON CONFLICT (run_id, course_id, session) DO UPDATE
SET teacher_id = EXCLUDED.teacher_id,
    classroom_id = EXCLUDED.classroom_id,
    day_of_week = EXCLUDED.day_of_week,
    time_slot_id = EXCLUDED.time_slot_id,
    soft_score = EXCLUDED.soft_score`

	for i := range assignments {
		a := &assignments[i]
		if a.RunID == "" {
			return fmt.Errorf("assignment %s has no run_id", a.ID)
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, a); err != nil {
			return fmt.Errorf("upsert timetable assignment: %w", err)
		}
	}
	return nil
}

// ListByRun returns assignments ordered by day, slot and course.
func (r *AssignmentRepository) ListByRun(ctx context.Context, runID string) ([]models.Assignment, error) {
	const query = `SELECT id, run_id, term_id, course_id, teacher_id, classroom_id, day_of_week, time_slot_id, session, soft_score, created_at
FROM timetable_assignments WHERE run_id = $1 ORDER BY day_of_week ASC, time_slot_id ASC, course_id ASC, session ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, runID); err != nil {
		return nil, fmt.Errorf("list timetable assignments: %w", err)
	}
	return assignments, nil
}

// DeleteByRun removes every assignment of a run.
func (r *AssignmentRepository) DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error {
	const query = `DELETE FROM timetable_assignments WHERE run_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("delete timetable assignments: %w", err)
	}
	return nil
}
