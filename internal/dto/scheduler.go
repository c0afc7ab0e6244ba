package dto

import (
	"time"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

// GenerateTimetableRequest instructs the engine to solve a term. Inline reference collections
// replace the stored ones for that collection only; CourseIDs narrows the stored course list.
type GenerateTimetableRequest struct {
	TermID        string             `json:"termId" validate:"required"`
	Days          []int              `json:"days" validate:"omitempty,dive,min=1,max=7"`
	CourseIDs     []string           `json:"courseIds" validate:"omitempty,dive,required"`
	Courses       []models.Course    `json:"courses" validate:"omitempty,dive"`
	Teachers      []models.Teacher   `json:"teachers" validate:"omitempty,dive"`
	Classrooms    []models.Classroom `json:"classrooms" validate:"omitempty,dive"`
	TimeSlots     []models.TimeSlot  `json:"timeSlots" validate:"omitempty,dive"`
	BudgetSeconds int                `json:"budgetSeconds" validate:"omitempty,min=1,max=600"`
}

// GenerateTimetableResponse returns the solved proposal and its audit summary.
type GenerateTimetableResponse struct {
	ProposalID     string                    `json:"proposalId"`
	TermID         string                    `json:"termId"`
	Status         models.SolveStatus        `json:"status"`
	Assignments    []models.Assignment       `json:"assignments"`
	Failed         []models.PlacementFailure `json:"failed"`
	Metrics        models.SolveMetrics       `json:"metrics"`
	BudgetExceeded bool                      `json:"budgetExceeded"`
	DurationMs     int64                     `json:"durationMs"`
	Audit          models.ConflictSummary    `json:"audit"`
	ExpiresAt      time.Time                 `json:"expiresAt"`
}

// SaveTimetableRequest persists a proposal as a new timetable run version.
type SaveTimetableRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Publish    bool   `json:"publish"`
}

// SaveTimetableResponse identifies the stored run.
type SaveTimetableResponse struct {
	RunID   string                    `json:"runId"`
	Version int                       `json:"version"`
	Status  models.TimetableRunStatus `json:"status"`
}

// TimetableRunQuery filters stored runs by term.
type TimetableRunQuery struct {
	TermID string `form:"termId" json:"termId"`
}

// AuditRequest checks an arbitrary assignment list. Reference collections left empty are loaded from storage.
type AuditRequest struct {
	TermID      string              `json:"termId" validate:"required"`
	Assignments []models.Assignment `json:"assignments" validate:"required,min=1,dive"`
	Courses     []models.Course     `json:"courses" validate:"omitempty,dive"`
	Teachers    []models.Teacher    `json:"teachers" validate:"omitempty,dive"`
	Classrooms  []models.Classroom  `json:"classrooms" validate:"omitempty,dive"`
	TimeSlots   []models.TimeSlot   `json:"timeSlots" validate:"omitempty,dive"`
}

// SolveJobResponse reports the state of an asynchronous solve.
type SolveJobResponse struct {
	ID          string                `json:"id"`
	TermID      string                `json:"termId"`
	Status      models.SolveJobStatus `json:"status"`
	ProposalID  string                `json:"proposalId,omitempty"`
	Error       string                `json:"error,omitempty"`
	SubmittedAt time.Time             `json:"submittedAt"`
	FinishedAt  *time.Time            `json:"finishedAt,omitempty"`
}
