// Package conflictgen plants known conflicts into valid timetables so the
// auditor and the engine can be exercised against scenarios with a known answer.
package conflictgen

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
)

// Level groups scenario templates by difficulty.
type Level string

const (
	LevelBasic   Level = "basic"
	LevelComplex Level = "complex"
	LevelExtreme Level = "extreme"
)

// Scenario types.
const (
	ScenarioTeacherDoubleBooking   = "teacher_double_booking"
	ScenarioClassroomDoubleBooking = "classroom_double_booking"
	ScenarioMultiResource          = "multi_resource_competition"
	ScenarioCapacityOverflow       = "capacity_overflow"
	ScenarioDependencyChain        = "dependency_chain"
	ScenarioCascading              = "cascading_conflicts"
	ScenarioMultiDimensional       = "multi_dimensional"
)

var (
	// ErrUnknownLevel is returned for levels outside basic, complex and extreme.
	ErrUnknownLevel = errors.New("unknown conflict level")
	// ErrNotApplicable is returned when no template of the level fits the schedule.
	ErrNotApplicable = errors.New("no scenario of this level can be applied to the schedule")
)

// ParseLevel accepts a level name in any case.
func ParseLevel(raw string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := templates[level]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, raw)
	}
	return level, nil
}

// Scenario describes one synthetic conflict.
type Scenario struct {
	Type        string                  `json:"type" yaml:"type"`
	Level       Level                   `json:"level" yaml:"level"`
	Severity    models.ConflictSeverity `json:"severity" yaml:"severity"`
	StressPoint string                  `json:"stress_point" yaml:"stress_point"`
	Description string                  `json:"description" yaml:"description"`
	AffectedIDs []string                `json:"affected_ids,omitempty" yaml:"affected_ids,omitempty"`
}

// ExpectedViolation is a finding the auditor must report after injection.
type ExpectedViolation struct {
	Type      string   `json:"type" yaml:"type"`
	EntityIDs []string `json:"entity_ids" yaml:"entity_ids"`
}

// Injection is a mutated copy of a schedule plus what the auditor should find in it.
// Exact means the expected list is the complete set of findings for a clean input.
type Injection struct {
	Scenario    Scenario            `json:"scenario" yaml:"scenario"`
	Assignments []models.Assignment `json:"assignments" yaml:"assignments"`
	Expected    []ExpectedViolation `json:"expected" yaml:"expected"`
	Exact       bool                `json:"exact" yaml:"exact"`
}

type applyFunc func(st *state) ([]ExpectedViolation, bool)

type template struct {
	scenario    string
	weight      float64
	severity    models.ConflictSeverity
	stressPoint string
	description string
	exact       bool
	apply       applyFunc
}

var templates = map[Level][]template{
	LevelBasic: {
		{
			scenario:    ScenarioTeacherDoubleBooking,
			weight:      0.5,
			severity:    models.SeverityCritical,
			stressPoint: "teacher availability index",
			description: "one session is moved onto another session of the same teacher",
			exact:       true,
			apply:       applyTeacherDoubleBooking,
		},
		{
			scenario:    ScenarioClassroomDoubleBooking,
			weight:      0.5,
			severity:    models.SeverityCritical,
			stressPoint: "classroom occupancy index",
			description: "one session is moved into a classroom another teacher already holds",
			exact:       true,
			apply:       applyClassroomDoubleBooking,
		},
	},
	LevelComplex: {
		{
			scenario:    ScenarioMultiResource,
			weight:      0.4,
			severity:    models.SeverityCritical,
			stressPoint: "simultaneous teacher and classroom contention",
			description: "an extra session competes for the same teacher and classroom at once",
			apply:       applyMultiResource,
		},
		{
			scenario:    ScenarioCapacityOverflow,
			weight:      0.35,
			severity:    models.SeverityHigh,
			stressPoint: "capacity filter",
			description: "a session is moved into a classroom too small for its course",
			exact:       true,
			apply:       applyCapacityOverflow,
		},
		{
			scenario:    ScenarioDependencyChain,
			weight:      0.25,
			severity:    models.SeverityCritical,
			stressPoint: "displacement chains on one teacher",
			description: "two sessions of one teacher are displaced onto a third",
			apply:       applyDependencyChain,
		},
	},
	LevelExtreme: {
		{
			scenario:    ScenarioCascading,
			weight:      0.6,
			severity:    models.SeverityCritical,
			stressPoint: "repeated conflicts across teachers",
			description: "several independent double bookings plus a capacity overflow",
			apply:       applyCascading,
		},
		{
			scenario:    ScenarioMultiDimensional,
			weight:      0.4,
			severity:    models.SeverityCritical,
			stressPoint: "simultaneous hard constraint failures",
			description: "one extra session breaks teacher, classroom, qualification and capacity rules together",
			apply:       applyMultiDimensional,
		},
	},
}

// Injector draws scenarios with a seeded random source so runs are reproducible.
type Injector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	opts   scheduler.RegistryOptions
	logger *zap.Logger
}

// New builds an injector. Equal seeds yield equal scenario sequences.
func New(seed int64, opts scheduler.RegistryOptions, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{rng: rand.New(rand.NewSource(seed)), opts: opts, logger: logger}
}

// Generate draws a scenario descriptor without touching any schedule.
func (i *Injector) Generate(level Level) (Scenario, error) {
	set, ok := templates[level]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	tpl := set[i.pick(set)]
	return tpl.describe(level), nil
}

// Inject applies a weighted-random template of the level to a copy of the assignments.
// Templates that do not fit the schedule are skipped in descending weight order.
func (i *Injector) Inject(level Level, ref scheduler.ReferenceData, assignments []models.Assignment) (*Injection, error) {
	set, ok := templates[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	reg := scheduler.NewRegistry(ref, i.opts)

	i.mu.Lock()
	defer i.mu.Unlock()

	first := i.pick(set)
	order := []int{first}
	rest := make([]int, 0, len(set)-1)
	for idx := range set {
		if idx != first {
			rest = append(rest, idx)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool { return set[rest[a]].weight > set[rest[b]].weight })
	order = append(order, rest...)

	for _, idx := range order {
		tpl := set[idx]
		st := newState(i.rng, reg, assignments, tpl.scenario)
		expected, applied := tpl.apply(st)
		if !applied {
			i.logger.Debug("conflict template not applicable", zap.String("scenario", tpl.scenario))
			continue
		}
		scenario := tpl.describe(level)
		scenario.AffectedIDs = affected(expected)
		i.logger.Info("conflict injected",
			zap.String("scenario", tpl.scenario),
			zap.String("level", string(level)),
			zap.Strings("affected_ids", scenario.AffectedIDs),
		)
		return &Injection{
			Scenario:    scenario,
			Assignments: st.assignments,
			Expected:    expected,
			Exact:       tpl.exact,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotApplicable, level)
}

func (i *Injector) pick(set []template) int {
	var total float64
	for _, t := range set {
		total += t.weight
	}
	r := i.rng.Float64() * total
	for idx, t := range set {
		if r < t.weight {
			return idx
		}
		r -= t.weight
	}
	return len(set) - 1
}

func (t template) describe(level Level) Scenario {
	return Scenario{
		Type:        t.scenario,
		Level:       level,
		Severity:    t.severity,
		StressPoint: t.stressPoint,
		Description: t.description,
	}
}

func affected(expected []ExpectedViolation) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range expected {
		for _, id := range e.EntityIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
