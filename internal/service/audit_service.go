package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-timetable/internal/dto"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/repository"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

type runAssignmentReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.Assignment, error)
}

type runFinder interface {
	FindByID(ctx context.Context, id string) (*models.TimetableRun, error)
}

// AuditService audits inline or stored assignment lists and caches reports by content.
type AuditService struct {
	auditor     conflictAuditor
	reference   referenceLoader
	runs        runFinder
	assignments runAssignmentReader
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	ttl         time.Duration
}

// AuditDeps groups the collaborators of AuditService.
type AuditDeps struct {
	Auditor     conflictAuditor
	Reference   referenceReader
	Runs        runFinder
	Assignments runAssignmentReader
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	CacheTTL    time.Duration
}

// NewAuditService wires the service.
func NewAuditService(deps AuditDeps) *AuditService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 10 * time.Minute
	}
	return &AuditService{
		auditor:     deps.Auditor,
		reference:   referenceLoader{repo: deps.Reference},
		runs:        deps.Runs,
		assignments: deps.Assignments,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		validator:   validator.New(),
		logger:      deps.Logger,
		ttl:         deps.CacheTTL,
	}
}

// AuditAssignments audits the provided list. The bool reports a cache hit.
func (s *AuditService) AuditAssignments(ctx context.Context, req dto.AuditRequest) (*models.ConflictReport, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit payload")
	}
	ref, err := s.reference.load(ctx, scheduler.ReferenceData{
		TermID:     req.TermID,
		Courses:    req.Courses,
		Teachers:   req.Teachers,
		Classrooms: req.Classrooms,
		TimeSlots:  req.TimeSlots,
	}, nil)
	if err != nil {
		return nil, false, err
	}
	return s.audit(ctx, ref, req.Assignments)
}

// AuditRun audits the assignments stored for a run against current reference data.
func (s *AuditService) AuditRun(ctx context.Context, runID string) (*models.ConflictReport, bool, error) {
	if runID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	assignments, err := s.assignments.ListByRun(ctx, runID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable assignments")
	}
	ref, err := s.reference.load(ctx, scheduler.ReferenceData{TermID: run.TermID}, nil)
	if err != nil {
		return nil, false, err
	}
	return s.audit(ctx, ref, assignments)
}

func (s *AuditService) audit(ctx context.Context, ref scheduler.ReferenceData, assignments []models.Assignment) (*models.ConflictReport, bool, error) {
	key, keyErr := auditCacheKey(ref, assignments)
	if keyErr == nil {
		var cached models.ConflictReport
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, true, nil
		}
	} else {
		s.logger.Warn("audit cache key unavailable", zap.Error(keyErr))
	}

	report, err := s.auditor.Audit(ctx, ref, assignments)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to audit assignments")
	}
	s.metrics.ObserveAudit(report)
	if keyErr == nil {
		_ = s.cache.Set(ctx, key, report, s.ttl)
	}
	s.logger.Info("audit completed",
		zap.String("term_id", ref.TermID),
		zap.Int("assignments", report.AssignmentsChecked),
		zap.Int("violations", report.Summary.Total),
		zap.Bool("clean", report.Clean),
	)
	return &report, false, nil
}

// auditCacheKey digests the reference data and assignments so identical inputs share a report.
func auditCacheKey(ref scheduler.ReferenceData, assignments []models.Assignment) (string, error) {
	payload, err := json.Marshal(struct {
		Reference   scheduler.ReferenceData `json:"reference"`
		Assignments []models.Assignment     `json:"assignments"`
	}{ref, assignments})
	if err != nil {
		return "", err
	}
	return repository.AuditKey(strconv.FormatUint(xxhash.Sum64(payload), 16)), nil
}
