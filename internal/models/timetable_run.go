package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableRunStatus represents lifecycle phases for saved solve runs.
type TimetableRunStatus string

const (
	TimetableRunStatusDraft     TimetableRunStatus = "DRAFT"
	TimetableRunStatusPublished TimetableRunStatus = "PUBLISHED"
	TimetableRunStatusArchived  TimetableRunStatus = "ARCHIVED"
)

// TimetableRun captures a versioned, persisted solve result for a term.
type TimetableRun struct {
	ID          string             `db:"id" json:"id"`
	TermID      string             `db:"term_id" json:"term_id"`
	Version     int                `db:"version" json:"version"`
	Status      TimetableRunStatus `db:"status" json:"status"`
	SolveStatus SolveStatus        `db:"solve_status" json:"solve_status"`
	Meta        types.JSONText     `db:"meta" json:"meta"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}
