package models

import "time"

// Assignment is one committed (course, teacher, classroom, day, slot) tuple.
// Assignments are never edited in place; corrections retract and reselect.
type Assignment struct {
	ID          string    `db:"id" json:"id" yaml:"id"`
	RunID       string    `db:"run_id" json:"run_id,omitempty" yaml:"-"`
	TermID      string    `db:"term_id" json:"term_id" yaml:"term_id"`
	CourseID    string    `db:"course_id" json:"course_id" yaml:"course_id" validate:"required"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id" yaml:"teacher_id" validate:"required"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id" yaml:"classroom_id" validate:"required"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week" yaml:"day_of_week" validate:"min=1,max=7"`
	TimeSlotID  string    `db:"time_slot_id" json:"time_slot_id" yaml:"time_slot_id" validate:"required"`
	Session     int       `db:"session" json:"session" yaml:"session"`
	SoftScore   float64   `db:"soft_score" json:"soft_score" yaml:"soft_score"`
	CreatedAt   time.Time `db:"created_at" json:"created_at,omitempty" yaml:"-"`
}

// PlacementFailure explains why a course could not be placed. Reason is always one of
// the closed set of Failure* strings.
type PlacementFailure struct {
	CourseID              string         `json:"course_id" yaml:"course_id"`
	Reason                string         `json:"reason" yaml:"reason"`
	Kind                  string         `json:"kind" yaml:"kind"`
	SessionsNeeded        int            `json:"sessions_needed" yaml:"sessions_needed"`
	SessionsPlaced        int            `json:"sessions_placed" yaml:"sessions_placed"`
	CandidatesExamined    int            `json:"candidates_examined" yaml:"candidates_examined"`
	BestAttemptViolations []string       `json:"best_attempt_violations" yaml:"best_attempt_violations"`
	ViolationCounts       map[string]int `json:"violation_counts,omitempty" yaml:"violation_counts,omitempty"`
}

// Closed set of placement failure reasons.
const (
	FailureNoFeasibleCandidate = "no feasible candidate"
	FailureWorkload            = "teacher workload limit exceeded"
	FailureCapacity            = "no classroom with sufficient capacity"
	FailureRoomCategory        = "no compatible classroom category"
	FailureBudgetExceeded      = "budget exceeded"
	FailureTooFewDays          = "more weekly sessions than teaching days"
)

// SolveStatus tracks the lifecycle of one solve run.
type SolveStatus string

const (
	SolveStatusPending    SolveStatus = "PENDING"
	SolveStatusInProgress SolveStatus = "IN_PROGRESS"
	SolveStatusCompleted  SolveStatus = "COMPLETED"
	SolveStatusPartial    SolveStatus = "PARTIAL"
)

// SolveMetrics aggregates the quality of a solve run.
type SolveMetrics struct {
	SuccessRate        float64 `json:"success_rate" yaml:"success_rate"`
	AverageSoftScore   float64 `json:"average_soft_score" yaml:"average_soft_score"`
	TotalAssignments   int     `json:"total_assignments" yaml:"total_assignments"`
	PlacedCourses      int     `json:"placed_courses" yaml:"placed_courses"`
	TotalCourses       int     `json:"total_courses" yaml:"total_courses"`
	FallbackPlacements int     `json:"fallback_placements" yaml:"fallback_placements"`
	ReoptimizedCourses int     `json:"reoptimized_courses" yaml:"reoptimized_courses"`
}
