package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

var (
	// ErrSlotOccupied is returned when a commit would double-book a teacher or classroom.
	ErrSlotOccupied = errors.New("slot already occupied")
	// ErrNotCommitted is returned when retracting an assignment the index does not hold.
	ErrNotCommitted = errors.New("assignment not committed")
	// ErrTermMismatch is returned when an assignment belongs to another term than the index.
	ErrTermMismatch = errors.New("assignment term does not match index term")
)

// TeacherSession is one occupied cell of a teacher's day.
type TeacherSession struct {
	TimeSlotID  string
	ClassroomID string
}

// View is the read side of the availability bookkeeping consumed by the constraint registry.
type View interface {
	IsTeacherBusy(teacherID string, day int, slotID string) bool
	IsClassroomBusy(classroomID string, day int, slotID string) bool
	TeacherHours(teacherID string) float64
	TeacherDailyHours(teacherID string, day int) float64
	TeacherSessions(teacherID string, day int) []TeacherSession
}

type cellKey struct {
	Day  int
	Slot string
}

type commitRecord struct {
	assignment models.Assignment
	hours      float64
}

// Index tracks occupied (day, slot) cells per teacher and classroom plus running hour counters
// for a single term. It is owned by one solve session and is not safe for concurrent writes.
type Index struct {
	term       string
	teachers   map[string]map[cellKey]string
	classrooms map[string]map[cellKey]string
	weekly     map[string]float64
	daily      map[string]map[int]float64
	committed  map[string]commitRecord
}

// NewIndex builds an empty index scoped to termID.
func NewIndex(termID string) *Index {
	return &Index{
		term:       termID,
		teachers:   make(map[string]map[cellKey]string),
		classrooms: make(map[string]map[cellKey]string),
		weekly:     make(map[string]float64),
		daily:      make(map[string]map[int]float64),
		committed:  make(map[string]commitRecord),
	}
}

// TermID returns the term the index is scoped to.
func (x *Index) TermID() string {
	return x.term
}

// IsTeacherBusy reports whether the teacher already teaches at (day, slot).
func (x *Index) IsTeacherBusy(teacherID string, day int, slotID string) bool {
	_, busy := x.teachers[teacherID][cellKey{Day: day, Slot: slotID}]
	return busy
}

// IsClassroomBusy reports whether the classroom is already booked at (day, slot).
func (x *Index) IsClassroomBusy(classroomID string, day int, slotID string) bool {
	_, busy := x.classrooms[classroomID][cellKey{Day: day, Slot: slotID}]
	return busy
}

// TeacherHours returns the committed weekly hours of a teacher.
func (x *Index) TeacherHours(teacherID string) float64 {
	return x.weekly[teacherID]
}

// TeacherDailyHours returns the committed hours of a teacher on one day.
func (x *Index) TeacherDailyHours(teacherID string, day int) float64 {
	return x.daily[teacherID][day]
}

// TeacherSessions lists the teacher's committed cells on a day ordered by slot id.
func (x *Index) TeacherSessions(teacherID string, day int) []TeacherSession {
	var sessions []TeacherSession
	for key, assignmentID := range x.teachers[teacherID] {
		if key.Day != day {
			continue
		}
		sessions = append(sessions, TeacherSession{
			TimeSlotID:  key.Slot,
			ClassroomID: x.committed[assignmentID].assignment.ClassroomID,
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].TimeSlotID < sessions[j].TimeSlotID })
	return sessions
}

// Len returns the number of committed assignments.
func (x *Index) Len() int {
	return len(x.committed)
}

// Commit books the assignment's teacher and classroom cells and adds hours to the teacher's counters.
// The index is left untouched when either cell is already occupied.
func (x *Index) Commit(a models.Assignment, hours float64) error {
	if a.TermID != "" && a.TermID != x.term {
		return fmt.Errorf("%w: %s", ErrTermMismatch, a.TermID)
	}
	if _, exists := x.committed[a.ID]; exists {
		return fmt.Errorf("%w: assignment %s already committed", ErrSlotOccupied, a.ID)
	}
	key := cellKey{Day: a.DayOfWeek, Slot: a.TimeSlotID}
	if holder, busy := x.teachers[a.TeacherID][key]; busy {
		return fmt.Errorf("%w: teacher %s held by %s", ErrSlotOccupied, a.TeacherID, holder)
	}
	if holder, busy := x.classrooms[a.ClassroomID][key]; busy {
		return fmt.Errorf("%w: classroom %s held by %s", ErrSlotOccupied, a.ClassroomID, holder)
	}

	if x.teachers[a.TeacherID] == nil {
		x.teachers[a.TeacherID] = make(map[cellKey]string)
	}
	if x.classrooms[a.ClassroomID] == nil {
		x.classrooms[a.ClassroomID] = make(map[cellKey]string)
	}
	if x.daily[a.TeacherID] == nil {
		x.daily[a.TeacherID] = make(map[int]float64)
	}
	x.teachers[a.TeacherID][key] = a.ID
	x.classrooms[a.ClassroomID][key] = a.ID
	x.weekly[a.TeacherID] += hours
	x.daily[a.TeacherID][a.DayOfWeek] += hours
	x.committed[a.ID] = commitRecord{assignment: a, hours: hours}
	return nil
}

// Retract releases everything Commit booked for the assignment.
func (x *Index) Retract(a models.Assignment) error {
	record, ok := x.committed[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCommitted, a.ID)
	}
	stored := record.assignment
	key := cellKey{Day: stored.DayOfWeek, Slot: stored.TimeSlotID}
	delete(x.teachers[stored.TeacherID], key)
	delete(x.classrooms[stored.ClassroomID], key)
	x.weekly[stored.TeacherID] = clampHours(x.weekly[stored.TeacherID] - record.hours)
	x.daily[stored.TeacherID][stored.DayOfWeek] = clampHours(x.daily[stored.TeacherID][stored.DayOfWeek] - record.hours)
	delete(x.committed, a.ID)
	return nil
}

func clampHours(v float64) float64 {
	if v < 1e-9 {
		return 0
	}
	return v
}

// plannedSession is a tentative placement of the course currently being selected.
type plannedSession struct {
	TeacherID   string
	ClassroomID string
	Day         int
	SlotID      string
	Hours       float64
}

// planOverlay layers tentative sessions over a committed view without mutating it.
type planOverlay struct {
	base    View
	planned []plannedSession
}

func newPlanOverlay(base View) *planOverlay {
	return &planOverlay{base: base}
}

func (p *planOverlay) add(s plannedSession) {
	p.planned = append(p.planned, s)
}

func (p *planOverlay) IsTeacherBusy(teacherID string, day int, slotID string) bool {
	for _, s := range p.planned {
		if s.TeacherID == teacherID && s.Day == day && s.SlotID == slotID {
			return true
		}
	}
	return p.base.IsTeacherBusy(teacherID, day, slotID)
}

func (p *planOverlay) IsClassroomBusy(classroomID string, day int, slotID string) bool {
	for _, s := range p.planned {
		if s.ClassroomID == classroomID && s.Day == day && s.SlotID == slotID {
			return true
		}
	}
	return p.base.IsClassroomBusy(classroomID, day, slotID)
}

func (p *planOverlay) TeacherHours(teacherID string) float64 {
	hours := p.base.TeacherHours(teacherID)
	for _, s := range p.planned {
		if s.TeacherID == teacherID {
			hours += s.Hours
		}
	}
	return hours
}

func (p *planOverlay) TeacherDailyHours(teacherID string, day int) float64 {
	hours := p.base.TeacherDailyHours(teacherID, day)
	for _, s := range p.planned {
		if s.TeacherID == teacherID && s.Day == day {
			hours += s.Hours
		}
	}
	return hours
}

func (p *planOverlay) TeacherSessions(teacherID string, day int) []TeacherSession {
	sessions := p.base.TeacherSessions(teacherID, day)
	for _, s := range p.planned {
		if s.TeacherID == teacherID && s.Day == day {
			sessions = append(sessions, TeacherSession{TimeSlotID: s.SlotID, ClassroomID: s.ClassroomID})
		}
	}
	return sessions
}
