package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeSlot is one ordinal period of a teaching day.
type TimeSlot struct {
	ID        string `db:"id" json:"id" yaml:"id" validate:"required"`
	Order     int    `db:"slot_order" json:"order" yaml:"order" validate:"min=1"`
	StartTime string `db:"start_time" json:"start_time" yaml:"start_time"`
	EndTime   string `db:"end_time" json:"end_time" yaml:"end_time"`
}

// StartHour returns the hour component of StartTime, or -1 when it cannot be parsed.
func (s TimeSlot) StartHour() int {
	hour, _, ok := parseClock(s.StartTime)
	if !ok {
		return -1
	}
	return hour
}

// Duration is EndTime minus StartTime; zero when either side is malformed.
func (s TimeSlot) Duration() time.Duration {
	sh, sm, ok := parseClock(s.StartTime)
	if !ok {
		return 0
	}
	eh, em, ok := parseClock(s.EndTime)
	if !ok {
		return 0
	}
	minutes := (eh*60 + em) - (sh*60 + sm)
	if minutes < 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

func parseClock(raw string) (int, int, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

var dayIndexMap = map[int]string{
	1: "MONDAY",
	2: "TUESDAY",
	3: "WEDNESDAY",
	4: "THURSDAY",
	5: "FRIDAY",
	6: "SATURDAY",
	7: "SUNDAY",
}

var dayNameIndex = map[string]int{
	"MONDAY":    1,
	"TUESDAY":   2,
	"WEDNESDAY": 3,
	"THURSDAY":  4,
	"FRIDAY":    5,
	"SATURDAY":  6,
	"SUNDAY":    7,
}

// DayName converts a 1-based weekday index to its uppercase name.
func DayName(day int) string {
	if name, ok := dayIndexMap[day]; ok {
		return name
	}
	return ""
}

// DayIndex converts a weekday name (any case) or numeric string into its 1-based index; 0 when unknown.
func DayIndex(name string) int {
	name = strings.ToUpper(strings.TrimSpace(name))
	if idx, ok := dayNameIndex[name]; ok {
		return idx
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= 7 {
		return n
	}
	return 0
}

// NormalizeDays drops out-of-range and duplicate days and sorts the remainder.
func NormalizeDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	result := make([]int, 0, len(days))
	for _, day := range days {
		if day < 1 || day > 7 || seen[day] {
			continue
		}
		seen[day] = true
		result = append(result, day)
	}
	sort.Ints(result)
	return result
}
