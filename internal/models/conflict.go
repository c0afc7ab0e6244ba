package models

// ConflictSeverity ranks audit findings.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityHigh     ConflictSeverity = "high"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityLow      ConflictSeverity = "low"
)

// Rank orders severities from most to least severe.
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Conflict types surfaced by the auditor.
const (
	ConflictTeacherDoubleBooking   = "TEACHER_DOUBLE_BOOKING"
	ConflictClassroomDoubleBooking = "CLASSROOM_DOUBLE_BOOKING"
	ConflictCapacityOverflow       = "CAPACITY_OVERFLOW"
	ConflictWorkloadExceeded       = "WORKLOAD_EXCEEDED"
	ConflictUnqualifiedTeacher     = "UNQUALIFIED_TEACHER"
	ConflictRoomCategoryMismatch   = "ROOM_CATEGORY_MISMATCH"
	ConflictMissingReference       = "MISSING_REFERENCE"
)

// ConflictRecord is one violation found in a finished assignment list.
type ConflictRecord struct {
	Type        string           `json:"type" yaml:"type"`
	Severity    ConflictSeverity `json:"severity" yaml:"severity"`
	Key         string           `json:"key" yaml:"key"`
	EntityIDs   []string         `json:"entity_ids" yaml:"entity_ids"`
	Description string           `json:"description" yaml:"description"`
}

// ConflictSummary counts findings per severity.
type ConflictSummary struct {
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
	Total    int `json:"total" yaml:"total"`
}

// ConflictReport is the auditor output for one assignment list.
type ConflictReport struct {
	AssignmentsChecked int              `json:"assignments_checked" yaml:"assignments_checked"`
	Clean              bool             `json:"clean" yaml:"clean"`
	Summary            ConflictSummary  `json:"summary" yaml:"summary"`
	Violations         []ConflictRecord `json:"violations" yaml:"violations"`
}

// Blocking reports whether the report contains critical or high findings.
func (r ConflictReport) Blocking() bool {
	return r.Summary.Critical > 0 || r.Summary.High > 0
}

// ConflictReportError is returned when a schedule cannot be persisted because of audit findings.
type ConflictReportError struct {
	Message string         `json:"message" yaml:"message"`
	Report  ConflictReport `json:"report" yaml:"report"`
}

// Error implements the error interface for conflict errors.
func (e *ConflictReportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
