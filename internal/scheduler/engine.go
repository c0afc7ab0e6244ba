package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/pkg/config"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

const scoreEpsilon = 1e-9

// Options configures a solve run.
type Options struct {
	Registry            RegistryOptions
	Selector            SelectorOptions
	Days                []int
	Budget              time.Duration
	MaxReoptimizePasses int
	ReoptimizeBelow     float64
}

// DefaultOptions returns the stock engine configuration.
func DefaultOptions() Options {
	sel := DefaultSelectorOptions()
	return Options{
		Registry:            DefaultRegistryOptions(),
		Selector:            sel,
		Days:                []int{1, 2, 3, 4, 5},
		Budget:              30 * time.Second,
		MaxReoptimizePasses: 2,
		ReoptimizeBelow:     sel.AcceptanceThreshold,
	}
}

// OptionsFromConfig maps the scheduler configuration onto engine options.
func OptionsFromConfig(cfg config.SchedulerConfig) Options {
	opts := DefaultOptions()
	opts.Registry.Weights = Weights{
		Time:         cfg.Weights.Time,
		Workload:     cfg.Weights.Workload,
		Utilization:  cfg.Weights.Utilization,
		Distribution: cfg.Weights.Distribution,
		DailyBalance: cfg.Weights.DailyBalance,
		Continuity:   cfg.Weights.Continuity,
		RoomMatch:    cfg.Weights.RoomMatch,
	}
	if len(cfg.RoomCompatibility) > 0 {
		opts.Registry.RoomCompatibility = cfg.RoomCompatibility
	}
	opts.Registry.IdealWeeklyMin = cfg.IdealWeeklyMin
	opts.Registry.IdealWeeklyMax = cfg.IdealWeeklyMax
	opts.Registry.EveningStartHour = cfg.EveningStartHour
	opts.Selector = SelectorOptions{
		AcceptanceThreshold: cfg.AcceptanceThreshold,
		Workers:             cfg.Workers,
		BatchSize:           cfg.BatchSize,
		ShortCircuitAfter:   cfg.ShortCircuitAfter,
		MaxConsecutive:      cfg.MaxConsecutive,
	}
	if len(cfg.Days) > 0 {
		opts.Days = cfg.Days
	}
	if cfg.Budget > 0 {
		opts.Budget = cfg.Budget
	}
	if cfg.MaxReoptimizePasses >= 0 {
		opts.MaxReoptimizePasses = cfg.MaxReoptimizePasses
	}
	if cfg.AcceptanceThreshold > 0 {
		opts.ReoptimizeBelow = cfg.AcceptanceThreshold
	}
	return opts
}

// Result is the outcome of one solve run.
type Result struct {
	Status         models.SolveStatus        `json:"status" yaml:"status"`
	TermID         string                    `json:"term_id" yaml:"term_id"`
	Assignments    []models.Assignment       `json:"assignments" yaml:"assignments"`
	Failed         []models.PlacementFailure `json:"failed" yaml:"failed"`
	Metrics        models.SolveMetrics       `json:"metrics" yaml:"metrics"`
	BudgetExceeded bool                      `json:"budget_exceeded" yaml:"budget_exceeded"`
	Duration       time.Duration             `json:"duration" yaml:"duration"`
}

// Engine places courses greedily in priority order and then reoptimizes weak placements.
type Engine struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine constructs an engine. A nil logger disables logging.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger, now: time.Now}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

type solveRun struct {
	status  models.SolveStatus
	termID  string
	started time.Time
	logger  *zap.Logger
}

func (r *solveRun) transition(next models.SolveStatus) {
	r.logger.Debug("solve status changed",
		zap.String("term_id", r.termID),
		zap.String("from", string(r.status)),
		zap.String("to", string(next)),
	)
	r.status = next
}

// Solve assigns every course it can and reports the rest as placement failures.
// Only structurally invalid input returns an error.
func (e *Engine) Solve(ctx context.Context, ref ReferenceData) (*Result, error) {
	run := &solveRun{status: models.SolveStatusPending, termID: ref.TermID, started: e.now(), logger: e.logger}

	if len(ref.Days) == 0 {
		ref.Days = e.opts.Days
	}
	if e.opts.Registry.Weights != (Weights{}) {
		if err := e.opts.Registry.Weights.Validate(); err != nil {
			return nil, err
		}
	}
	registry := NewRegistry(ref, e.opts.Registry)
	if err := validateStructure(ref, registry); err != nil {
		return nil, err
	}

	// The budget is only consulted between courses; selection runs on the caller's context.
	budget := ctx
	if e.opts.Budget > 0 {
		var cancel context.CancelFunc
		budget, cancel = context.WithTimeout(ctx, e.opts.Budget)
		defer cancel()
	}

	index := NewIndex(ref.TermID)
	selector := NewSelector(registry, e.opts.Selector)
	ordered := OrderCourses(ref.Courses)

	run.transition(models.SolveStatusInProgress)
	e.logger.Info("timetable solve started",
		zap.String("term_id", ref.TermID),
		zap.Int("courses", len(ref.Courses)),
		zap.Int("teachers", len(ref.Teachers)),
		zap.Int("classrooms", len(ref.Classrooms)),
		zap.Int("time_slots", len(ref.TimeSlots)),
		zap.Ints("days", registry.Days()),
	)

	placed := make(map[string][]models.Assignment, len(ordered))
	fallbacks := make(map[string]int, len(ordered))
	var failed []models.PlacementFailure
	budgetExceeded := false

	for i, course := range ordered {
		if budget.Err() != nil {
			budgetExceeded = true
			for _, rest := range ordered[i:] {
				failed = append(failed, budgetFailure(rest))
			}
			break
		}
		assignments, fallback, failure := e.place(ctx, selector, index, ref.TermID, course)
		if failure != nil {
			if failure.Reason == models.FailureBudgetExceeded {
				budgetExceeded = true
			}
			e.logger.Warn("course placement failed",
				zap.String("term_id", ref.TermID),
				zap.String("course_id", course.ID),
				zap.String("reason", failure.Reason),
				zap.String("kind", failure.Kind),
				zap.Int("candidates_examined", failure.CandidatesExamined),
			)
			failed = append(failed, *failure)
			continue
		}
		placed[course.ID] = assignments
		fallbacks[course.ID] = fallback
	}

	reoptimized := 0
	if !budgetExceeded {
		reoptimized = e.reoptimize(budget, ctx, selector, index, ref.TermID, ordered, placed, fallbacks)
	}

	result := &Result{TermID: ref.TermID, Failed: failed, BudgetExceeded: budgetExceeded}
	if result.Failed == nil {
		result.Failed = []models.PlacementFailure{}
	}
	result.Assignments = make([]models.Assignment, 0, index.Len())
	totalFallbacks := 0
	for _, course := range ordered {
		result.Assignments = append(result.Assignments, placed[course.ID]...)
		totalFallbacks += fallbacks[course.ID]
	}
	result.Metrics = buildMetrics(len(ordered), len(placed), result.Assignments, totalFallbacks, reoptimized)

	if len(failed) == 0 {
		run.transition(models.SolveStatusCompleted)
	} else {
		run.transition(models.SolveStatusPartial)
	}
	result.Status = run.status
	result.Duration = e.now().Sub(run.started)

	e.logger.Info("timetable solve finished",
		zap.String("term_id", ref.TermID),
		zap.String("status", string(result.Status)),
		zap.Int("placed_courses", result.Metrics.PlacedCourses),
		zap.Int("failed_courses", len(result.Failed)),
		zap.Int("assignments", result.Metrics.TotalAssignments),
		zap.Float64("average_soft_score", result.Metrics.AverageSoftScore),
		zap.Int("reoptimized_courses", reoptimized),
		zap.Bool("budget_exceeded", budgetExceeded),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// place selects and commits every session of a course.
func (e *Engine) place(ctx context.Context, selector *Selector, index *Index, termID string, course models.Course) ([]models.Assignment, int, *models.PlacementFailure) {
	selection, failure := selector.Select(ctx, course, index)
	if failure != nil {
		return nil, 0, failure
	}

	hours := course.SessionHours()
	assignments := make([]models.Assignment, 0, len(selection.Sessions))
	for i, c := range selection.Sessions {
		a := models.Assignment{
			ID:          AssignmentID(termID, course.ID, i+1),
			TermID:      termID,
			CourseID:    course.ID,
			TeacherID:   c.TeacherID,
			ClassroomID: c.ClassroomID,
			DayOfWeek:   c.Day,
			TimeSlotID:  c.Slot.ID,
			Session:     i + 1,
			SoftScore:   roundScore(c.Score.Total),
		}
		if err := index.Commit(a, hours); err != nil {
			for _, done := range assignments {
				_ = index.Retract(done)
			}
			e.logger.Error("commit rejected a selected candidate",
				zap.String("course_id", course.ID),
				zap.Error(err),
			)
			return nil, 0, &models.PlacementFailure{
				CourseID:              course.ID,
				Reason:                models.FailureNoFeasibleCandidate,
				Kind:                  "COMMIT_REJECTED",
				SessionsNeeded:        course.Sessions(),
				SessionsPlaced:        len(assignments),
				CandidatesExamined:    selection.Examined,
				BestAttemptViolations: []string{err.Error()},
			}
		}
		assignments = append(assignments, a)
	}
	return assignments, selection.Fallbacks, nil
}

// reoptimize retracts weak placements and keeps a reselection only when it scores strictly better.
func (e *Engine) reoptimize(budget, ctx context.Context, selector *Selector, index *Index, termID string, ordered []models.Course, placed map[string][]models.Assignment, fallbacks map[string]int) int {
	improvedCourses := make(map[string]bool)
	for pass := 0; pass < e.opts.MaxReoptimizePasses; pass++ {
		improved := 0
		for _, course := range ordered {
			if budget.Err() != nil {
				return len(improvedCourses)
			}
			current, ok := placed[course.ID]
			if !ok {
				continue
			}
			before := meanScore(current)
			if before >= e.opts.ReoptimizeBelow {
				continue
			}

			for _, a := range current {
				_ = index.Retract(a)
			}
			candidate, fallback, failure := e.place(ctx, selector, index, termID, course)
			if failure == nil && meanScore(candidate) > before+scoreEpsilon {
				placed[course.ID] = candidate
				fallbacks[course.ID] = fallback
				improvedCourses[course.ID] = true
				improved++
				continue
			}
			for _, a := range candidate {
				_ = index.Retract(a)
			}
			hours := course.SessionHours()
			for _, a := range current {
				if err := index.Commit(a, hours); err != nil {
					e.logger.Error("failed to restore placement", zap.String("assignment_id", a.ID), zap.Error(err))
				}
			}
		}
		e.logger.Debug("reoptimize pass finished", zap.Int("pass", pass+1), zap.Int("improved", improved))
		if improved == 0 {
			break
		}
	}
	return len(improvedCourses)
}

// OrderCourses sorts by priority desc, max students desc, id asc.
func OrderCourses(courses []models.Course) []models.Course {
	ordered := make([]models.Course, len(courses))
	copy(ordered, courses)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.MaxStudents != b.MaxStudents {
			return a.MaxStudents > b.MaxStudents
		}
		return a.ID < b.ID
	})
	return ordered
}

// AssignmentID builds the deterministic identifier of a course session.
func AssignmentID(termID, courseID string, session int) string {
	return fmt.Sprintf("%s-%s-%d", termID, courseID, session)
}

func validateStructure(ref ReferenceData, registry *Registry) error {
	var problems []string
	if strings.TrimSpace(ref.TermID) == "" {
		problems = append(problems, "term id is required")
	}
	if len(ref.Courses) == 0 {
		problems = append(problems, "no courses supplied")
	}
	if len(ref.Teachers) == 0 {
		problems = append(problems, "no teachers supplied")
	}
	if len(ref.Classrooms) == 0 {
		problems = append(problems, "no classrooms supplied")
	}
	if len(ref.TimeSlots) == 0 {
		problems = append(problems, "no time slots supplied")
	}
	if len(registry.Days()) == 0 {
		problems = append(problems, "no teaching days configured")
	}
	problems = append(problems, duplicateIDs("course", len(ref.Courses), func(i int) string { return ref.Courses[i].ID })...)
	problems = append(problems, duplicateIDs("teacher", len(ref.Teachers), func(i int) string { return ref.Teachers[i].ID })...)
	problems = append(problems, duplicateIDs("classroom", len(ref.Classrooms), func(i int) string { return ref.Classrooms[i].ID })...)
	problems = append(problems, duplicateIDs("time slot", len(ref.TimeSlots), func(i int) string { return ref.TimeSlots[i].ID })...)

	if len(ref.Teachers) > 0 {
		for _, course := range ref.Courses {
			if course.WeeklyHours <= 0 {
				problems = append(problems, fmt.Sprintf("course %s has no weekly hours", course.ID))
				continue
			}
			if len(registry.EligibleTeachers(course)) == 0 {
				problems = append(problems, fmt.Sprintf("course %s has no qualified teacher", course.ID))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return appErrors.Clone(appErrors.ErrStructural, strings.Join(problems, "; "))
}

func duplicateIDs(entity string, n int, id func(int) string) []string {
	seen := make(map[string]bool, n)
	var problems []string
	for i := 0; i < n; i++ {
		value := id(i)
		if strings.TrimSpace(value) == "" {
			problems = append(problems, fmt.Sprintf("%s at position %d has no id", entity, i))
			continue
		}
		if seen[value] {
			problems = append(problems, fmt.Sprintf("duplicate %s id %s", entity, value))
		}
		seen[value] = true
	}
	return problems
}

func budgetFailure(course models.Course) models.PlacementFailure {
	return models.PlacementFailure{
		CourseID:              course.ID,
		Reason:                models.FailureBudgetExceeded,
		Kind:                  KindBudget,
		SessionsNeeded:        course.Sessions(),
		BestAttemptViolations: []string{},
	}
}

func buildMetrics(totalCourses, placedCourses int, assignments []models.Assignment, fallbacks, reoptimized int) models.SolveMetrics {
	metrics := models.SolveMetrics{
		TotalAssignments:   len(assignments),
		PlacedCourses:      placedCourses,
		TotalCourses:       totalCourses,
		FallbackPlacements: fallbacks,
		ReoptimizedCourses: reoptimized,
	}
	if totalCourses > 0 {
		metrics.SuccessRate = roundScore(float64(placedCourses) / float64(totalCourses))
	}
	metrics.AverageSoftScore = roundScore(meanScore(assignments))
	return metrics
}

func meanScore(assignments []models.Assignment) float64 {
	if len(assignments) == 0 {
		return 0
	}
	var sum float64
	for _, a := range assignments {
		sum += a.SoftScore
	}
	return sum / float64(len(assignments))
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
