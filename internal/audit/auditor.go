package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
)

// Auditor re-checks a finished assignment list against the hard constraints.
// It never mutates its input and tolerates references it cannot resolve.
type Auditor struct {
	opts   scheduler.RegistryOptions
	logger *zap.Logger
}

// New constructs an auditor that shares room compatibility rules with the engine.
func New(opts scheduler.RegistryOptions, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{opts: opts, logger: logger}
}

type checkFunc func(reg *scheduler.Registry, assignments []models.Assignment) []models.ConflictRecord

// Audit runs every check family concurrently and merges the findings in a stable order.
// The only error it returns is the context's.
func (a *Auditor) Audit(ctx context.Context, ref scheduler.ReferenceData, assignments []models.Assignment) (models.ConflictReport, error) {
	reg := scheduler.NewRegistry(ref, a.opts)
	checks := []checkFunc{
		teacherDoubleBookings,
		classroomDoubleBookings,
		capacityOverflows,
		workloadOverruns,
		referenceChecks,
	}

	results := make([][]models.ConflictRecord, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = check(reg, assignments)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ConflictReport{}, err
	}

	report := models.ConflictReport{AssignmentsChecked: len(assignments), Violations: []models.ConflictRecord{}}
	for _, records := range results {
		report.Violations = append(report.Violations, records...)
	}
	sort.SliceStable(report.Violations, func(i, j int) bool {
		x, y := report.Violations[i], report.Violations[j]
		if x.Severity.Rank() != y.Severity.Rank() {
			return x.Severity.Rank() < y.Severity.Rank()
		}
		if x.Type != y.Type {
			return x.Type < y.Type
		}
		return x.Key < y.Key
	})
	report.Summary = Summarize(report.Violations)
	report.Clean = report.Summary.Total == 0

	a.logger.Debug("timetable audited",
		zap.String("term_id", ref.TermID),
		zap.Int("assignments", len(assignments)),
		zap.Int("critical", report.Summary.Critical),
		zap.Int("high", report.Summary.High),
		zap.Int("medium", report.Summary.Medium),
	)
	return report, nil
}

// Summarize counts records per severity.
func Summarize(records []models.ConflictRecord) models.ConflictSummary {
	var summary models.ConflictSummary
	for _, r := range records {
		switch r.Severity {
		case models.SeverityCritical:
			summary.Critical++
		case models.SeverityHigh:
			summary.High++
		case models.SeverityMedium:
			summary.Medium++
		default:
			summary.Low++
		}
	}
	summary.Total = len(records)
	return summary
}

func teacherDoubleBookings(_ *scheduler.Registry, assignments []models.Assignment) []models.ConflictRecord {
	return doubleBookings(assignments, models.ConflictTeacherDoubleBooking, "teacher", func(a models.Assignment) string { return a.TeacherID })
}

func classroomDoubleBookings(_ *scheduler.Registry, assignments []models.Assignment) []models.ConflictRecord {
	return doubleBookings(assignments, models.ConflictClassroomDoubleBooking, "classroom", func(a models.Assignment) string { return a.ClassroomID })
}

// doubleBookings groups assignments by (entity, term, day, slot) and reports every group larger than one.
func doubleBookings(assignments []models.Assignment, conflictType, label string, entity func(models.Assignment) string) []models.ConflictRecord {
	groups := make(map[string][]string)
	for _, a := range assignments {
		id := entity(a)
		if id == "" {
			continue
		}
		key := fmt.Sprintf("%s|%s|%d|%s", id, a.TermID, a.DayOfWeek, a.TimeSlotID)
		groups[key] = append(groups[key], a.ID)
	}

	var records []models.ConflictRecord
	for key, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		parts := strings.SplitN(key, "|", 4)
		records = append(records, models.ConflictRecord{
			Type:      conflictType,
			Severity:  models.SeverityCritical,
			Key:       key,
			EntityIDs: sorted,
			Description: fmt.Sprintf("%s %s is booked %d times on %s slot %s",
				label, parts[0], len(ids), dayLabel(parts[2]), parts[3]),
		})
	}
	return records
}

func capacityOverflows(reg *scheduler.Registry, assignments []models.Assignment) []models.ConflictRecord {
	var records []models.ConflictRecord
	for _, a := range assignments {
		course, ok := reg.Course(a.CourseID)
		if !ok {
			continue
		}
		room, ok := reg.Classroom(a.ClassroomID)
		if !ok || reg.CapacityOK(course, room) {
			continue
		}
		records = append(records, models.ConflictRecord{
			Type:        models.ConflictCapacityOverflow,
			Severity:    models.SeverityHigh,
			Key:         a.ID,
			EntityIDs:   []string{a.ID},
			Description: fmt.Sprintf("classroom %s seats %d but course %s has %d students", room.ID, room.Capacity, course.ID, course.MaxStudents),
		})
	}
	return records
}

type loadKey struct {
	term    string
	teacher string
	day     int
}

// workloadOverruns sums session hours per teacher per term and per day against the caps.
func workloadOverruns(reg *scheduler.Registry, assignments []models.Assignment) []models.ConflictRecord {
	weekly := make(map[loadKey]float64)
	daily := make(map[loadKey]float64)
	weeklyIDs := make(map[loadKey][]string)
	dailyIDs := make(map[loadKey][]string)
	for _, a := range assignments {
		course, ok := reg.Course(a.CourseID)
		if !ok {
			continue
		}
		if _, ok := reg.Teacher(a.TeacherID); !ok {
			continue
		}
		wk := loadKey{term: a.TermID, teacher: a.TeacherID}
		dk := loadKey{term: a.TermID, teacher: a.TeacherID, day: a.DayOfWeek}
		weekly[wk] += course.SessionHours()
		daily[dk] += course.SessionHours()
		weeklyIDs[wk] = append(weeklyIDs[wk], a.ID)
		dailyIDs[dk] = append(dailyIDs[dk], a.ID)
	}

	var records []models.ConflictRecord
	for key, hours := range weekly {
		teacher, _ := reg.Teacher(key.teacher)
		if !scheduler.ExceedsWeekly(teacher, 0, hours) {
			continue
		}
		ids := append([]string(nil), weeklyIDs[key]...)
		sort.Strings(ids)
		records = append(records, models.ConflictRecord{
			Type:        models.ConflictWorkloadExceeded,
			Severity:    models.SeverityHigh,
			Key:         fmt.Sprintf("weekly|%s|%s", key.teacher, key.term),
			EntityIDs:   ids,
			Description: fmt.Sprintf("teacher %s teaches %.1f hours against a weekly cap of %.1f", key.teacher, hours, teacher.MaxWeeklyHours),
		})
	}
	for key, hours := range daily {
		teacher, _ := reg.Teacher(key.teacher)
		if !scheduler.ExceedsDaily(teacher, 0, hours) {
			continue
		}
		ids := append([]string(nil), dailyIDs[key]...)
		sort.Strings(ids)
		records = append(records, models.ConflictRecord{
			Type:        models.ConflictWorkloadExceeded,
			Severity:    models.SeverityHigh,
			Key:         fmt.Sprintf("daily|%s|%s|%d", key.teacher, key.term, key.day),
			EntityIDs:   ids,
			Description: fmt.Sprintf("teacher %s teaches %.1f hours on %s against a daily cap of %.1f", key.teacher, hours, models.DayName(key.day), teacher.MaxDailyHours),
		})
	}
	return records
}

// referenceChecks covers unresolvable ids, qualification and room category.
func referenceChecks(reg *scheduler.Registry, assignments []models.Assignment) []models.ConflictRecord {
	var records []models.ConflictRecord
	for _, a := range assignments {
		course, hasCourse := reg.Course(a.CourseID)
		teacher, hasTeacher := reg.Teacher(a.TeacherID)
		room, hasRoom := reg.Classroom(a.ClassroomID)
		_, hasSlot := reg.TimeSlot(a.TimeSlotID)

		var missing []string
		if !hasCourse {
			missing = append(missing, "course "+a.CourseID)
		}
		if !hasTeacher {
			missing = append(missing, "teacher "+a.TeacherID)
		}
		if !hasRoom {
			missing = append(missing, "classroom "+a.ClassroomID)
		}
		if !hasSlot {
			missing = append(missing, "time slot "+a.TimeSlotID)
		}
		if models.DayName(a.DayOfWeek) == "" {
			missing = append(missing, fmt.Sprintf("day %d", a.DayOfWeek))
		}
		if len(missing) > 0 {
			records = append(records, models.ConflictRecord{
				Type:        models.ConflictMissingReference,
				Severity:    models.SeverityMedium,
				Key:         a.ID,
				EntityIDs:   []string{a.ID},
				Description: "missing_refs: " + strings.Join(missing, ", "),
			})
		}

		if hasCourse && hasTeacher && !reg.IsQualified(course, teacher) {
			records = append(records, models.ConflictRecord{
				Type:        models.ConflictUnqualifiedTeacher,
				Severity:    models.SeverityMedium,
				Key:         a.ID,
				EntityIDs:   []string{a.ID},
				Description: fmt.Sprintf("teacher %s is not qualified for course %s", teacher.ID, course.ID),
			})
		}
		if hasCourse && hasRoom && !reg.RoomCompatible(course.RoomCategory, room.Category) {
			records = append(records, models.ConflictRecord{
				Type:        models.ConflictRoomCategoryMismatch,
				Severity:    models.SeverityMedium,
				Key:         a.ID,
				EntityIDs:   []string{a.ID},
				Description: fmt.Sprintf("classroom %s (%s) does not suit course %s (%s)", room.ID, room.Category, course.ID, course.RoomCategory),
			})
		}
	}
	return records
}

func dayLabel(raw string) string {
	if name := models.DayName(models.DayIndex(raw)); name != "" {
		return name
	}
	return "day " + raw
}
