package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-timetable/internal/dto"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/repository"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

type timetableRunRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error
	ListByTerm(ctx context.Context, termID string) ([]models.TimetableRun, error)
	FindByID(ctx context.Context, id string) (*models.TimetableRun, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableRunStatus, meta types.JSONText) error
	ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termID, keepID string) error
}

type assignmentRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.Assignment) error
	ListByRun(ctx context.Context, runID string) ([]models.Assignment, error)
	DeleteByRun(ctx context.Context, exec sqlx.ExtContext, runID string) error
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type timetableSolver interface {
	Solve(ctx context.Context, ref scheduler.ReferenceData) (*scheduler.Result, error)
}

type conflictAuditor interface {
	Audit(ctx context.Context, ref scheduler.ReferenceData, assignments []models.Assignment) (models.ConflictReport, error)
}

// TimetableService solves terms into proposals and persists accepted proposals as versioned runs.
type TimetableService struct {
	terms       termReader
	reference   referenceLoader
	runs        timetableRunRepository
	assignments assignmentRepository
	solver      timetableSolver
	auditor     conflictAuditor
	tx          txProvider
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	store       *proposalStore
	cfg         TimetableServiceConfig
}

// TimetableServiceConfig governs proposal retention and the default day set.
type TimetableServiceConfig struct {
	ProposalTTL time.Duration
	Days        []int
}

// TimetableDeps groups the collaborators of TimetableService.
type TimetableDeps struct {
	Terms       termReader
	Reference   referenceReader
	Runs        timetableRunRepository
	Assignments assignmentRepository
	Solver      timetableSolver
	Auditor     conflictAuditor
	Tx          txProvider
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewTimetableService wires the service.
func NewTimetableService(deps TimetableDeps, cfg TimetableServiceConfig) *TimetableService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &TimetableService{
		terms:       deps.Terms,
		reference:   referenceLoader{repo: deps.Reference},
		runs:        deps.Runs,
		assignments: deps.Assignments,
		solver:      deps.Solver,
		auditor:     deps.Auditor,
		tx:          deps.Tx,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
		store:       newProposalStore(cfg.ProposalTTL),
		cfg:         cfg,
	}
}

// Generate solves the requested term and keeps the result as a proposal.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	if err := s.ensureTerm(ctx, req.TermID); err != nil {
		return nil, err
	}

	days := models.NormalizeDays(req.Days)
	if len(days) == 0 {
		days = models.NormalizeDays(s.cfg.Days)
	}
	ref, err := s.reference.load(ctx, scheduler.ReferenceData{
		TermID:     req.TermID,
		Courses:    req.Courses,
		Teachers:   req.Teachers,
		Classrooms: req.Classrooms,
		TimeSlots:  req.TimeSlots,
		Days:       days,
	}, req.CourseIDs)
	if err != nil {
		return nil, err
	}

	solveCtx := ctx
	if req.BudgetSeconds > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, time.Duration(req.BudgetSeconds)*time.Second)
		defer cancel()
	}

	result, err := s.solver.Solve(solveCtx, ref)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	s.metrics.ObserveSolve(result)

	report, err := s.auditor.Audit(ctx, ref, result.Assignments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to audit proposal")
	}
	s.metrics.ObserveAudit(report)

	proposal := timetableProposal{
		ProposalID:  uuid.NewString(),
		Reference:   ref,
		Result:      *result,
		Audit:       report.Summary,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)
	_ = s.cache.Set(ctx, repository.ProposalKey(proposal.ProposalID), proposal, s.cfg.ProposalTTL)

	s.logger.Info("timetable proposal generated",
		zap.String("proposal_id", proposal.ProposalID),
		zap.String("term_id", ref.TermID),
		zap.String("status", string(result.Status)),
		zap.Int("assignments", len(result.Assignments)),
		zap.Int("failed", len(result.Failed)),
	)

	return proposal.response(s.cfg.ProposalTTL), nil
}

// Save audits a proposal and stores it as a new run version. Critical or high findings block the save.
func (s *TimetableService) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, ok := s.loadProposal(ctx, req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}

	report, err := s.auditor.Audit(ctx, proposal.Reference, proposal.Result.Assignments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to audit proposal")
	}
	if report.Blocking() {
		conflict := &models.ConflictReportError{Message: "proposal contains blocking conflicts", Report: report}
		return nil, appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "proposal contains blocking conflicts")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	metaBytes, err := json.Marshal(map[string]any{
		"proposal_id":     proposal.ProposalID,
		"metrics":         proposal.Result.Metrics,
		"failed":          proposal.Result.Failed,
		"budget_exceeded": proposal.Result.BudgetExceeded,
		"audit":           report.Summary,
		"days":            proposal.Reference.Days,
		"generated":       proposal.RequestedAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	run := &models.TimetableRun{
		TermID:      proposal.Reference.TermID,
		Status:      models.TimetableRunStatusDraft,
		SolveStatus: proposal.Result.Status,
		Meta:        types.JSONText(metaBytes),
	}
	if err = s.runs.CreateVersioned(ctx, tx, run); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable run")
		return nil, err
	}

	rows := make([]models.Assignment, len(proposal.Result.Assignments))
	copy(rows, proposal.Result.Assignments)
	for i := range rows {
		rows[i].RunID = run.ID
	}
	if err = s.assignments.UpsertBatch(ctx, tx, rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable assignments")
		return nil, err
	}

	if req.Publish {
		if err = s.runs.ArchivePublished(ctx, tx, run.TermID, run.ID); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive published timetables")
			return nil, err
		}
		if err = s.runs.UpdateStatus(ctx, tx, run.ID, models.TimetableRunStatusPublished, nil); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
			return nil, err
		}
		run.Status = models.TimetableRunStatusPublished
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}

	s.store.Delete(req.ProposalID)
	_ = s.cache.Delete(ctx, repository.ProposalKey(req.ProposalID))

	s.logger.Info("timetable run saved",
		zap.String("run_id", run.ID),
		zap.String("term_id", run.TermID),
		zap.Int("version", run.Version),
		zap.String("status", string(run.Status)),
	)
	return &dto.SaveTimetableResponse{RunID: run.ID, Version: run.Version, Status: run.Status}, nil
}

// List returns stored runs for a term, newest first.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableRunQuery) ([]models.TimetableRun, error) {
	if query.TermID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	runs, err := s.runs.ListByTerm(ctx, query.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}
	return runs, nil
}

// GetAssignments returns the assignments stored for a run.
func (s *TimetableService) GetAssignments(ctx context.Context, runID string) ([]models.Assignment, error) {
	if _, err := s.findRun(ctx, runID); err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable assignments")
	}
	return assignments, nil
}

// Delete removes a draft run and its assignments.
func (s *TimetableService) Delete(ctx context.Context, runID string) error {
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.TimetableRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.assignments.DeleteByRun(ctx, tx, runID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable assignments")
		return err
	}
	if err = s.runs.Delete(ctx, tx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable run")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable deletion")
		return err
	}
	return nil
}

// Proposal returns a pending proposal by id.
func (s *TimetableService) Proposal(ctx context.Context, id string) (*dto.GenerateTimetableResponse, error) {
	proposal, ok := s.loadProposal(ctx, id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	return proposal.response(s.cfg.ProposalTTL), nil
}

func (s *TimetableService) findRun(ctx context.Context, runID string) (*models.TimetableRun, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	return run, nil
}

func (s *TimetableService) ensureTerm(ctx context.Context, termID string) error {
	if s.terms == nil {
		return nil
	}
	if _, err := s.terms.FindByID(ctx, termID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return nil
}

// loadProposal checks memory first and falls back to Redis so proposals survive across instances.
func (s *TimetableService) loadProposal(ctx context.Context, id string) (timetableProposal, bool) {
	if proposal, ok := s.store.Get(id); ok {
		return proposal, true
	}
	var proposal timetableProposal
	hit, err := s.cache.Get(ctx, repository.ProposalKey(id), &proposal)
	if err != nil || !hit {
		return timetableProposal{}, false
	}
	if proposal.expired(s.cfg.ProposalTTL) {
		return timetableProposal{}, false
	}
	s.store.Save(proposal)
	return proposal, true
}

// --- Proposal cache ---

type timetableProposal struct {
	ProposalID  string                  `json:"proposal_id"`
	Reference   scheduler.ReferenceData `json:"reference"`
	Result      scheduler.Result        `json:"result"`
	Audit       models.ConflictSummary  `json:"audit"`
	RequestedAt time.Time               `json:"requested_at"`
}

func (p timetableProposal) expired(ttl time.Duration) bool {
	return time.Since(p.RequestedAt) > ttl
}

func (p timetableProposal) response(ttl time.Duration) *dto.GenerateTimetableResponse {
	return &dto.GenerateTimetableResponse{
		ProposalID:     p.ProposalID,
		TermID:         p.Reference.TermID,
		Status:         p.Result.Status,
		Assignments:    p.Result.Assignments,
		Failed:         p.Result.Failed,
		Metrics:        p.Result.Metrics,
		BudgetExceeded: p.Result.BudgetExceeded,
		DurationMs:     p.Result.Duration.Milliseconds(),
		Audit:          p.Audit,
		ExpiresAt:      p.RequestedAt.Add(ttl),
	}
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if proposal.expired(s.ttl) {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
