package models

import "time"

// SolveJobStatus tracks asynchronous solve requests.
type SolveJobStatus string

const (
	SolveJobQueued   SolveJobStatus = "QUEUED"
	SolveJobRunning  SolveJobStatus = "RUNNING"
	SolveJobFinished SolveJobStatus = "FINISHED"
	SolveJobFailed   SolveJobStatus = "FAILED"
)

// SolveJob is the in-memory record of one queued solve.
type SolveJob struct {
	ID          string
	TermID      string
	Status      SolveJobStatus
	ProposalID  string
	Error       string
	SubmittedAt time.Time
	FinishedAt  *time.Time
}
