package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-timetable/internal/dto"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
	"github.com/noah-isme/sma-adp-timetable/pkg/jobs"
)

// SolveJobType labels queued solve jobs.
const SolveJobType = "timetable.solve"

const defaultJobRetention = time.Hour

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
}

// TimetableJobService runs solves on the background queue and tracks their state.
type TimetableJobService struct {
	generator  timetableGenerator
	queue      jobDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
	maxRetries int
	retention  time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	items map[string]*models.SolveJob
}

// NewTimetableJobService constructs the service. The queue may be attached later with AttachQueue.
// Finished jobs are forgotten once retention has passed since they finished.
func NewTimetableJobService(generator timetableGenerator, queue jobDispatcher, maxRetries int, retention time.Duration, logger *zap.Logger) *TimetableJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	if retention <= 0 {
		retention = defaultJobRetention
	}
	return &TimetableJobService{
		generator:  generator,
		queue:      queue,
		validator:  validator.New(),
		logger:     logger,
		maxRetries: maxRetries,
		retention:  retention,
		now:        time.Now,
		items:      make(map[string]*models.SolveJob),
	}
}

// AttachQueue sets the dispatcher once the queue has been built around Handle.
func (s *TimetableJobService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// Submit validates the request and enqueues a solve.
func (s *TimetableJobService) Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.SolveJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "solve queue unavailable")
	}

	job := &models.SolveJob{
		ID:          uuid.NewString(),
		TermID:      req.TermID,
		Status:      models.SolveJobQueued,
		SubmittedAt: s.now().UTC(),
	}
	s.put(job)

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: SolveJobType, Payload: req}); err != nil {
		s.finish(job.ID, "", fmt.Sprintf("failed to enqueue job: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue solve job")
	}
	s.logger.Info("solve job queued", zap.String("job_id", job.ID), zap.String("term_id", job.TermID))
	return s.Status(ctx, job.ID)
}

// Status returns the current state of a job.
func (s *TimetableJobService) Status(_ context.Context, id string) (*dto.SolveJobResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if ok && s.expired(job) {
		delete(s.items, id)
		ok = false
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "solve job not found")
	}
	return &dto.SolveJobResponse{
		ID:          job.ID,
		TermID:      job.TermID,
		Status:      job.Status,
		ProposalID:  job.ProposalID,
		Error:       job.Error,
		SubmittedAt: job.SubmittedAt,
		FinishedAt:  job.FinishedAt,
	}, nil
}

// Handle processes a queued solve. Client errors fail the job without retry.
func (s *TimetableJobService) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		s.finish(job.ID, "", "unsupported job payload")
		return nil
	}
	s.setStatus(job.ID, models.SolveJobRunning, "")

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status < http.StatusInternalServerError || job.Attempt >= s.maxRetries {
			s.finish(job.ID, "", appErr.Message)
			s.logger.Warn("solve job failed", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		s.setStatus(job.ID, models.SolveJobQueued, appErr.Message)
		return err
	}
	s.finish(job.ID, resp.ProposalID, "")
	s.logger.Info("solve job finished",
		zap.String("job_id", job.ID),
		zap.String("proposal_id", resp.ProposalID),
		zap.String("status", string(resp.Status)),
	)
	return nil
}

func (s *TimetableJobService) put(job *models.SolveJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.items[job.ID] = job
}

// prune drops finished jobs past retention. Callers hold mu.
func (s *TimetableJobService) prune() {
	for id, job := range s.items {
		if s.expired(job) {
			delete(s.items, id)
		}
	}
}

func (s *TimetableJobService) expired(job *models.SolveJob) bool {
	return job.FinishedAt != nil && s.now().Sub(*job.FinishedAt) > s.retention
}

func (s *TimetableJobService) setStatus(id string, status models.SolveJobStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.items[id]; ok {
		job.Status = status
		job.Error = message
	}
}

// finish marks a job FINISHED when proposalID is set, FAILED otherwise.
func (s *TimetableJobService) finish(id, proposalID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return
	}
	finished := s.now().UTC()
	job.FinishedAt = &finished
	job.ProposalID = proposalID
	job.Error = message
	if proposalID != "" {
		job.Status = models.SolveJobFinished
	} else {
		job.Status = models.SolveJobFailed
	}
}
