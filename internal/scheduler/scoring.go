package scheduler

import (
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

// Weights is the soft constraint weight vector. It does not need to sum to one.
type Weights struct {
	Time         float64 `json:"time" yaml:"time"`
	Workload     float64 `json:"workload" yaml:"workload"`
	Utilization  float64 `json:"utilization" yaml:"utilization"`
	Distribution float64 `json:"distribution" yaml:"distribution"`
	DailyBalance float64 `json:"daily_balance" yaml:"daily_balance"`
	Continuity   float64 `json:"continuity" yaml:"continuity"`
	RoomMatch    float64 `json:"room_match" yaml:"room_match"`
}

// DefaultWeights mirrors the stock 25/20/15/15/10/10/5 split.
func DefaultWeights() Weights {
	return Weights{
		Time:         0.25,
		Workload:     0.20,
		Utilization:  0.15,
		Distribution: 0.15,
		DailyBalance: 0.10,
		Continuity:   0.10,
		RoomMatch:    0.05,
	}
}

func (w Weights) sum() float64 {
	return w.Time + w.Workload + w.Utilization + w.Distribution + w.DailyBalance + w.Continuity + w.RoomMatch
}

// Validate rejects negative components and an all-zero vector.
func (w Weights) Validate() error {
	components := []struct {
		name  string
		value float64
	}{
		{"time", w.Time},
		{"workload", w.Workload},
		{"utilization", w.Utilization},
		{"distribution", w.Distribution},
		{"daily_balance", w.DailyBalance},
		{"continuity", w.Continuity},
		{"room_match", w.RoomMatch},
	}
	for _, c := range components {
		if c.value < 0 || math.IsNaN(c.value) {
			return appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("weight %s must not be negative", c.name))
		}
	}
	if w.sum() <= 0 {
		return appErrors.Clone(appErrors.ErrInvalidWeights, "at least one weight must be positive")
	}
	return nil
}

// SoftScore holds the named sub-scores of a candidate, each in [0,100].
type SoftScore struct {
	Time         float64 `json:"time"`
	Workload     float64 `json:"workload"`
	Utilization  float64 `json:"utilization"`
	Distribution float64 `json:"distribution"`
	DailyBalance float64 `json:"daily_balance"`
	Continuity   float64 `json:"continuity"`
	RoomMatch    float64 `json:"room_match"`
	Total        float64 `json:"total"`
}

func (s SoftScore) weighted(w Weights) float64 {
	total := w.sum()
	if total <= 0 {
		return 0
	}
	value := (s.Time*w.Time +
		s.Workload*w.Workload +
		s.Utilization*w.Utilization +
		s.Distribution*w.Distribution +
		s.DailyBalance*w.DailyBalance +
		s.Continuity*w.Continuity +
		s.RoomMatch*w.RoomMatch) / total
	return clampScore(value)
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// TimePreferenceScore rates a slot start hour. Teachers with preferred slots cap non-preferred slots at 70.
func TimePreferenceScore(startHour, eveningStart int, hasPreferences, preferred bool) float64 {
	if hasPreferences && preferred {
		return 100
	}
	var score float64
	switch {
	case startHour < 0:
		score = 75
	case startHour >= eveningStart:
		score = 40
	case startHour < 8:
		score = 60
	case startHour < 12:
		score = 100
	case startHour < 14:
		score = 85
	default:
		score = 75
	}
	if hasPreferences && score > 70 {
		score = 70
	}
	return score
}

// WorkloadBalanceScore rewards projected weekly hours that stay inside the ideal band.
func WorkloadBalanceScore(projected, idealMin, idealMax, slope float64) float64 {
	var distance float64
	switch {
	case projected < idealMin:
		distance = idealMin - projected
	case projected > idealMax:
		distance = projected - idealMax
	}
	return clampScore(100 - slope*distance)
}

// UtilizationRatio is max_students / capacity, zero for rooms without seats.
func UtilizationRatio(maxStudents, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(maxStudents) / float64(capacity)
}

// UtilizationScore rewards rooms filled between 70% and 90%.
func UtilizationScore(ratio float64) float64 {
	var distance float64
	switch {
	case ratio < 0.7:
		distance = 0.7 - ratio
	case ratio > 0.9:
		distance = ratio - 0.9
	}
	return clampScore(100 - 250*distance)
}

// DistributionScore penalises more than two sessions on one day for a teacher.
func DistributionScore(sessionsAfterPlacing int) float64 {
	if sessionsAfterPlacing <= 2 {
		return 100
	}
	return clampScore(100 - 30*float64(sessionsAfterPlacing-2))
}

// DailyBalanceScore penalises loading a day that is already heavier than the teacher's lightest day.
func DailyBalanceScore(sessionsOnDay, fewestOnAnyDay int) float64 {
	diff := sessionsOnDay - fewestOnAnyDay
	if diff < 0 {
		diff = 0
	}
	return clampScore(100 - 15*float64(diff))
}

// ContinuityScore penalises long adjacent runs and room changes between adjacent sessions.
func ContinuityScore(adjacentPairs, otherBuilding, otherFloor int) float64 {
	score := 100.0
	if adjacentPairs > 1 {
		score -= 25 * float64(adjacentPairs-1)
	}
	score -= 15 * float64(otherBuilding)
	score -= 5 * float64(otherFloor)
	return clampScore(score)
}

// RoomMatchScore is the equipment coverage, minus 20 when the room is merely compatible.
func RoomMatchScore(required []string, room models.Classroom, exactCategory bool) float64 {
	score := 100.0
	if len(required) > 0 {
		covered := 0
		for _, item := range required {
			if room.HasEquipment(item) {
				covered++
			}
		}
		score = 100 * float64(covered) / float64(len(required))
	}
	if !exactCategory {
		score -= 20
	}
	return clampScore(score)
}

// Score evaluates every soft sub-score for a candidate against the current view.
func (r *Registry) Score(course models.Course, teacher models.Teacher, room models.Classroom, day int, slot models.TimeSlot, view View) SoftScore {
	sessions := view.TeacherSessions(teacher.ID, day)
	fewest := len(sessions)
	for _, d := range r.days {
		if d == day {
			continue
		}
		if n := len(view.TeacherSessions(teacher.ID, d)); n < fewest {
			fewest = n
		}
	}

	orders := r.slotOrders(sessions)
	orders[slot.Order] = true
	pairs := 0
	for o := range orders {
		if orders[o+1] {
			pairs++
		}
	}
	otherBuilding, otherFloor := 0, 0
	for _, s := range sessions {
		neighbour, ok := r.slots[s.TimeSlotID]
		if !ok || (neighbour.Order != slot.Order-1 && neighbour.Order != slot.Order+1) {
			continue
		}
		prev, ok := r.classrooms[s.ClassroomID]
		if !ok {
			continue
		}
		switch {
		case !strings.EqualFold(prev.Building, room.Building):
			otherBuilding++
		case prev.Floor != room.Floor:
			otherFloor++
		}
	}

	exact := strings.TrimSpace(course.RoomCategory) == "" || strings.EqualFold(course.RoomCategory, room.Category)
	score := SoftScore{
		Time:         TimePreferenceScore(slot.StartHour(), r.opts.EveningStartHour, len(teacher.PreferredSlots) > 0, teacher.Prefers(day, slot.ID)),
		Workload:     WorkloadBalanceScore(view.TeacherHours(teacher.ID)+course.SessionHours(), r.opts.IdealWeeklyMin, r.opts.IdealWeeklyMax, r.opts.WorkloadSlope),
		Utilization:  UtilizationScore(UtilizationRatio(course.MaxStudents, room.Capacity)),
		Distribution: DistributionScore(len(sessions) + 1),
		DailyBalance: DailyBalanceScore(len(sessions), fewest),
		Continuity:   ContinuityScore(pairs, otherBuilding, otherFloor),
		RoomMatch:    RoomMatchScore(course.RequiredEquipment, room, exact),
	}
	score.Total = score.weighted(r.opts.Weights)
	return score
}
