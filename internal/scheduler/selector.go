package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

// SelectorOptions tunes candidate enumeration and acceptance.
type SelectorOptions struct {
	AcceptanceThreshold float64
	Workers             int
	BatchSize           int
	ShortCircuitAfter   int
	MaxConsecutive      int
}

// DefaultSelectorOptions returns the stock selector tuning.
func DefaultSelectorOptions() SelectorOptions {
	return SelectorOptions{
		AcceptanceThreshold: 60,
		Workers:             4,
		BatchSize:           256,
		ShortCircuitAfter:   48,
		MaxConsecutive:      2,
	}
}

func (o SelectorOptions) withDefaults() SelectorOptions {
	def := DefaultSelectorOptions()
	if o.AcceptanceThreshold <= 0 {
		o.AcceptanceThreshold = def.AcceptanceThreshold
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.ShortCircuitAfter <= 0 {
		o.ShortCircuitAfter = def.ShortCircuitAfter
	}
	if o.MaxConsecutive < 0 {
		o.MaxConsecutive = def.MaxConsecutive
	}
	return o
}

// Candidate is a feasible (teacher, classroom, day, slot) tuple with its soft score.
type Candidate struct {
	TeacherID   string          `json:"teacher_id"`
	ClassroomID string          `json:"classroom_id"`
	Day         int             `json:"day_of_week"`
	Slot        models.TimeSlot `json:"time_slot"`
	Score       SoftScore       `json:"score"`
	Utilization float64         `json:"utilization"`
	Accepted    bool            `json:"accepted"`

	teacher models.Teacher
	room    models.Classroom
}

// Selection is the chosen set of sessions for one course.
type Selection struct {
	CourseID  string
	TeacherID string
	Sessions  []Candidate
	Fallbacks int
	Examined  int
}

// MeanScore averages the total soft score across sessions.
func (s Selection) MeanScore() float64 {
	if len(s.Sessions) == 0 {
		return 0
	}
	var sum float64
	for _, c := range s.Sessions {
		sum += c.Score.Total
	}
	return sum / float64(len(s.Sessions))
}

// Selector enumerates and ranks candidate placements for a course.
type Selector struct {
	registry *Registry
	opts     SelectorOptions
}

// NewSelector builds a selector over the registry.
func NewSelector(registry *Registry, opts SelectorOptions) *Selector {
	return &Selector{registry: registry, opts: opts.withDefaults()}
}

// Select picks one placement per required session, or explains why none exists.
// The view is only read; the caller commits the returned sessions.
func (s *Selector) Select(ctx context.Context, course models.Course, view View) (*Selection, *models.PlacementFailure) {
	diag := newDiagnostics()

	// Sessions of one course never share a day.
	if needed, days := course.Sessions(), len(s.registry.Days()); needed > days {
		diag.rejectBulk(1, Violation{
			Kind:    ViolationSameDay,
			Message: fmt.Sprintf("course %s needs %d sessions but only %d teaching days are configured", course.ID, needed, days),
		})
		return nil, diag.failureWith(course, models.FailureTooFewDays, ViolationSameDay)
	}

	rooms, tooSmall, wrongCategory := s.registry.EligibleClassrooms(course)
	if len(rooms) == 0 {
		if wrongCategory > 0 {
			diag.rejectBulk(wrongCategory, Violation{
				Kind:    ViolationRoomCategory,
				Message: fmt.Sprintf("no classroom of a category compatible with %q seats %d students", course.RoomCategory, course.MaxStudents),
			})
		}
		if tooSmall > 0 {
			diag.rejectBulk(tooSmall, Violation{
				Kind:    ViolationCapacity,
				Message: fmt.Sprintf("no classroom seats %d students", course.MaxStudents),
			})
		}
		if wrongCategory > 0 {
			return nil, diag.failureWith(course, models.FailureRoomCategory, ViolationRoomCategory)
		}
		return nil, diag.failureWith(course, models.FailureCapacity, ViolationCapacity)
	}

	var teachers []models.Teacher
	for _, t := range s.registry.EligibleTeachers(course) {
		if ExceedsWeekly(t, view.TeacherHours(t.ID), course.WeeklyHours) {
			diag.rejectBulk(1, Violation{
				Kind:    ViolationWeeklyWorkload,
				Message: fmt.Sprintf("teacher %s cannot take %.1f more hours within %.1f", t.ID, course.WeeklyHours, t.MaxWeeklyHours),
			})
			continue
		}
		teachers = append(teachers, t)
	}
	if len(teachers) == 0 {
		return nil, diag.failure(course)
	}

	first, err := s.rank(ctx, course, teachers, rooms, newPlanOverlay(view), nil, diag)
	if err != nil {
		return nil, diag.budgetFailure(course)
	}
	if len(first) == 0 {
		return nil, diag.failure(course)
	}

	for _, teacher := range teacherPreference(first, teachers) {
		var seed *Candidate
		for i := range first {
			if first[i].TeacherID == teacher.ID {
				seed = &first[i]
				break
			}
		}
		selection, err := s.planWith(ctx, course, teacher, rooms, view, seed, diag)
		if err != nil {
			return nil, diag.budgetFailure(course)
		}
		if selection != nil {
			selection.Examined = diag.examined
			return selection, nil
		}
	}
	return nil, diag.failure(course)
}

// planWith places every session of the course on a single teacher.
func (s *Selector) planWith(ctx context.Context, course models.Course, teacher models.Teacher, rooms []models.Classroom, view View, seed *Candidate, diag *diagnostics) (*Selection, error) {
	overlay := newPlanOverlay(view)
	usedDays := make(map[int]bool)
	selection := &Selection{CourseID: course.ID, TeacherID: teacher.ID}
	needed := course.Sessions()

	for session := 1; session <= needed; session++ {
		var pick Candidate
		if session == 1 && seed != nil {
			pick = *seed
		} else {
			ranked, err := s.rank(ctx, course, []models.Teacher{teacher}, rooms, overlay, usedDays, diag)
			if err != nil {
				return nil, err
			}
			if len(ranked) == 0 {
				diag.notePlaced(session - 1)
				return nil, nil
			}
			pick = ranked[0]
		}
		if !pick.Accepted {
			selection.Fallbacks++
		}
		overlay.add(plannedSession{
			TeacherID:   pick.TeacherID,
			ClassroomID: pick.ClassroomID,
			Day:         pick.Day,
			SlotID:      pick.Slot.ID,
			Hours:       course.SessionHours(),
		})
		usedDays[pick.Day] = true
		selection.Sessions = append(selection.Sessions, pick)
	}
	return selection, nil
}

// rank enumerates candidates lazily, scores them in concurrent batches and returns them best first.
func (s *Selector) rank(ctx context.Context, course models.Course, teachers []models.Teacher, rooms []models.Classroom, overlay *planOverlay, usedDays map[int]bool, diag *diagnostics) ([]Candidate, error) {
	var (
		ranked   []Candidate
		batch    = make([]Candidate, 0, s.opts.BatchSize)
		accepted int
		flushErr error
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Workers)
		for i := range batch {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				c := &batch[i]
				c.Score = s.registry.Score(course, c.teacher, c.room, c.Day, c.Slot, overlay)
				c.Utilization = UtilizationRatio(course.MaxStudents, c.room.Capacity)
				c.Accepted = c.Score.Total >= s.opts.AcceptanceThreshold
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, c := range batch {
			if c.Accepted {
				accepted++
			}
		}
		ranked = append(ranked, batch...)
		batch = batch[:0]
		return nil
	}

	s.enumerate(course, teachers, rooms, overlay, usedDays, diag, func(c Candidate) bool {
		batch = append(batch, c)
		if len(batch) < s.opts.BatchSize {
			return true
		}
		if flushErr = flush(); flushErr != nil {
			return false
		}
		return accepted < s.opts.ShortCircuitAfter
	})
	if flushErr != nil {
		return nil, flushErr
	}
	if err := flush(); err != nil {
		return nil, err
	}

	sortCandidates(ranked)
	return ranked, nil
}

// enumerate walks teachers x days x slots x classrooms and yields hard-feasible candidates.
// Teacher occupancy and session rules are checked before classrooms are visited.
func (s *Selector) enumerate(course models.Course, teachers []models.Teacher, rooms []models.Classroom, overlay *planOverlay, usedDays map[int]bool, diag *diagnostics, yield func(Candidate) bool) {
	slots := s.registry.TimeSlots()
	for _, teacher := range teachers {
		for _, day := range s.registry.Days() {
			if usedDays[day] {
				diag.rejectBulk(len(rooms)*len(slots), Violation{
					Kind:    ViolationSameDay,
					Message: fmt.Sprintf("course %s already meets on %s", course.ID, models.DayName(day)),
				})
				continue
			}
			for _, slot := range slots {
				if overlay.IsTeacherBusy(teacher.ID, day, slot.ID) {
					diag.rejectBulk(len(rooms), Violation{
						Kind:    ViolationTeacherBusy,
						Message: fmt.Sprintf("teacher %s already teaches on %s slot %s", teacher.ID, models.DayName(day), slot.ID),
					})
					continue
				}
				if s.opts.MaxConsecutive > 0 {
					orders := s.registry.slotOrders(overlay.TeacherSessions(teacher.ID, day))
					if consecutiveRun(orders, slot.Order) > s.opts.MaxConsecutive {
						diag.rejectBulk(len(rooms), Violation{
							Kind:    ViolationConsecutiveLimit,
							Message: fmt.Sprintf("teacher %s would teach more than %d consecutive slots on %s", teacher.ID, s.opts.MaxConsecutive, models.DayName(day)),
						})
						continue
					}
				}
				for _, room := range rooms {
					ok, violations := s.registry.IsFeasible(course, teacher, room, day, slot, overlay)
					if !ok {
						diag.reject(violations)
						continue
					}
					diag.examined++
					if !yield(Candidate{
						TeacherID:   teacher.ID,
						ClassroomID: room.ID,
						Day:         day,
						Slot:        slot,
						teacher:     teacher,
						room:        room,
					}) {
						return
					}
				}
			}
		}
	}
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		da, db := math.Abs(a.Utilization-0.8), math.Abs(b.Utilization-0.8)
		if da != db {
			return da < db
		}
		if a.ClassroomID != b.ClassroomID {
			return a.ClassroomID < b.ClassroomID
		}
		if a.TeacherID != b.TeacherID {
			return a.TeacherID < b.TeacherID
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Slot.Order < b.Slot.Order
	})
}

// teacherPreference orders teachers by their best first-session candidate,
// followed by teachers the ranking never reached.
func teacherPreference(ranked []Candidate, teachers []models.Teacher) []models.Teacher {
	byID := make(map[string]models.Teacher, len(teachers))
	for _, t := range teachers {
		byID[t.ID] = t
	}
	seen := make(map[string]bool, len(teachers))
	ordered := make([]models.Teacher, 0, len(teachers))
	for _, c := range ranked {
		if seen[c.TeacherID] {
			continue
		}
		seen[c.TeacherID] = true
		ordered = append(ordered, byID[c.TeacherID])
	}
	for _, t := range teachers {
		if !seen[t.ID] {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// dominance breaks ties between equally frequent violation kinds.
var dominance = []string{
	ViolationCapacity,
	ViolationRoomCategory,
	ViolationWeeklyWorkload,
	ViolationDailyWorkload,
	ViolationTeacherBusy,
	ViolationClassroomBusy,
	ViolationUnqualified,
	ViolationSameDay,
	ViolationConsecutiveLimit,
}

// KindBudget marks failures caused by the time budget rather than a violation.
const KindBudget = "BUDGET"

// FailureReasonFor maps a violation kind to its closed-form failure reason.
func FailureReasonFor(kind string) string {
	switch kind {
	case ViolationWeeklyWorkload, ViolationDailyWorkload:
		return models.FailureWorkload
	case ViolationCapacity:
		return models.FailureCapacity
	case ViolationRoomCategory:
		return models.FailureRoomCategory
	default:
		return models.FailureNoFeasibleCandidate
	}
}

type diagnostics struct {
	counts     map[string]int
	examined   int
	bestPlaced int
	nearest    []Violation
}

func newDiagnostics() *diagnostics {
	return &diagnostics{counts: make(map[string]int)}
}

func (d *diagnostics) reject(violations []Violation) {
	d.examined++
	for _, v := range violations {
		d.counts[v.Kind]++
	}
	if d.nearest == nil || len(violations) < len(d.nearest) {
		d.nearest = violations
	}
}

func (d *diagnostics) rejectBulk(n int, example Violation) {
	if n <= 0 {
		return
	}
	d.examined += n
	d.counts[example.Kind] += n
	if d.nearest == nil {
		d.nearest = []Violation{example}
	}
}

func (d *diagnostics) notePlaced(n int) {
	if n > d.bestPlaced {
		d.bestPlaced = n
	}
}

func (d *diagnostics) dominant() string {
	best, bestCount := "", 0
	for _, kind := range dominance {
		if c := d.counts[kind]; c > bestCount {
			best, bestCount = kind, c
		}
	}
	return best
}

func (d *diagnostics) failure(course models.Course) *models.PlacementFailure {
	kind := d.dominant()
	return d.failureWith(course, FailureReasonFor(kind), kind)
}

func (d *diagnostics) budgetFailure(course models.Course) *models.PlacementFailure {
	return d.failureWith(course, models.FailureBudgetExceeded, KindBudget)
}

func (d *diagnostics) failureWith(course models.Course, reason, kind string) *models.PlacementFailure {
	if kind == "" {
		kind = "NO_CANDIDATES"
	}
	nearest := make([]string, 0, len(d.nearest))
	for _, v := range d.nearest {
		nearest = append(nearest, v.String())
	}
	counts := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		counts[k] = v
	}
	return &models.PlacementFailure{
		CourseID:              course.ID,
		Reason:                reason,
		Kind:                  kind,
		SessionsNeeded:        course.Sessions(),
		SessionsPlaced:        d.bestPlaced,
		CandidatesExamined:    d.examined,
		BestAttemptViolations: nearest,
		ViolationCounts:       counts,
	}
}
