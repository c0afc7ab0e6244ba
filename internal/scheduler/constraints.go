package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

const hoursEpsilon = 1e-9

// Violation kinds reported by the hard predicate and the selector's session rules.
const (
	ViolationTeacherBusy      = "TEACHER_BUSY"
	ViolationClassroomBusy    = "CLASSROOM_BUSY"
	ViolationCapacity         = "CAPACITY"
	ViolationRoomCategory     = "ROOM_CATEGORY"
	ViolationWeeklyWorkload   = "WEEKLY_WORKLOAD"
	ViolationDailyWorkload    = "DAILY_WORKLOAD"
	ViolationUnqualified      = "UNQUALIFIED_TEACHER"
	ViolationSameDay          = "SAME_DAY_SESSION"
	ViolationConsecutiveLimit = "CONSECUTIVE_LIMIT"
)

// Violation is a single failed hard check.
type Violation struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Kind + ": " + v.Message
}

// ReferenceData bundles the immutable inputs shared by the engine and the auditor.
type ReferenceData struct {
	TermID     string             `json:"term_id" yaml:"term_id"`
	Courses    []models.Course    `json:"courses" yaml:"courses"`
	Teachers   []models.Teacher   `json:"teachers" yaml:"teachers"`
	Classrooms []models.Classroom `json:"classrooms" yaml:"classrooms"`
	TimeSlots  []models.TimeSlot  `json:"time_slots" yaml:"time_slots"`
	Days       []int              `json:"days" yaml:"days"`
}

// RegistryOptions tunes room compatibility and soft scoring.
type RegistryOptions struct {
	RoomCompatibility map[string][]string
	Weights           Weights
	IdealWeeklyMin    float64
	IdealWeeklyMax    float64
	WorkloadSlope     float64
	EveningStartHour  int
}

// DefaultRoomCompatibility lists the room categories each course category may use besides its own.
func DefaultRoomCompatibility() map[string][]string {
	return map[string][]string{
		"lab":      {"lab", "computer"},
		"computer": {"computer", "lab"},
	}
}

// DefaultRegistryOptions returns the stock scoring configuration.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		RoomCompatibility: DefaultRoomCompatibility(),
		Weights:           DefaultWeights(),
		IdealWeeklyMin:    10,
		IdealWeeklyMax:    18,
		WorkloadSlope:     8,
		EveningStartHour:  17,
	}
}

func (o RegistryOptions) withDefaults() RegistryOptions {
	def := DefaultRegistryOptions()
	if o.RoomCompatibility == nil {
		o.RoomCompatibility = def.RoomCompatibility
	}
	if o.Weights.sum() <= 0 {
		o.Weights = def.Weights
	}
	if o.IdealWeeklyMax <= 0 || o.IdealWeeklyMax < o.IdealWeeklyMin {
		o.IdealWeeklyMin = def.IdealWeeklyMin
		o.IdealWeeklyMax = def.IdealWeeklyMax
	}
	if o.WorkloadSlope <= 0 {
		o.WorkloadSlope = def.WorkloadSlope
	}
	if o.EveningStartHour <= 0 {
		o.EveningStartHour = def.EveningStartHour
	}
	return o
}

// Registry is the single source of truth for hard feasibility and soft scoring.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	opts       RegistryOptions
	days       []int
	courses    map[string]models.Course
	teachers   map[string]models.Teacher
	classrooms map[string]models.Classroom
	slots      map[string]models.TimeSlot
	slotOrder  []models.TimeSlot
	compat     map[string]map[string]bool
}

// NewRegistry indexes reference data for constant-time lookups.
func NewRegistry(ref ReferenceData, opts RegistryOptions) *Registry {
	opts = opts.withDefaults()
	r := &Registry{
		opts:       opts,
		days:       models.NormalizeDays(ref.Days),
		courses:    make(map[string]models.Course, len(ref.Courses)),
		teachers:   make(map[string]models.Teacher, len(ref.Teachers)),
		classrooms: make(map[string]models.Classroom, len(ref.Classrooms)),
		slots:      make(map[string]models.TimeSlot, len(ref.TimeSlots)),
		compat:     make(map[string]map[string]bool, len(opts.RoomCompatibility)),
	}
	for _, c := range ref.Courses {
		r.courses[c.ID] = c
	}
	for _, t := range ref.Teachers {
		r.teachers[t.ID] = t
	}
	for _, c := range ref.Classrooms {
		r.classrooms[c.ID] = c
	}
	for _, s := range ref.TimeSlots {
		r.slots[s.ID] = s
		r.slotOrder = append(r.slotOrder, s)
	}
	sort.SliceStable(r.slotOrder, func(i, j int) bool {
		if r.slotOrder[i].Order != r.slotOrder[j].Order {
			return r.slotOrder[i].Order < r.slotOrder[j].Order
		}
		return r.slotOrder[i].ID < r.slotOrder[j].ID
	})
	for course, rooms := range opts.RoomCompatibility {
		key := strings.ToLower(strings.TrimSpace(course))
		allowed := make(map[string]bool, len(rooms))
		for _, room := range rooms {
			allowed[strings.ToLower(strings.TrimSpace(room))] = true
		}
		r.compat[key] = allowed
	}
	return r
}

// Options returns the effective options after defaults were applied.
func (r *Registry) Options() RegistryOptions { return r.opts }

// Days returns the configured teaching days in ascending order.
func (r *Registry) Days() []int { return r.days }

// TimeSlots returns the slots ordered by their ordinal.
func (r *Registry) TimeSlots() []models.TimeSlot { return r.slotOrder }

func (r *Registry) Course(id string) (models.Course, bool) {
	c, ok := r.courses[id]
	return c, ok
}

func (r *Registry) Teacher(id string) (models.Teacher, bool) {
	t, ok := r.teachers[id]
	return t, ok
}

func (r *Registry) Classroom(id string) (models.Classroom, bool) {
	c, ok := r.classrooms[id]
	return c, ok
}

func (r *Registry) TimeSlot(id string) (models.TimeSlot, bool) {
	s, ok := r.slots[id]
	return s, ok
}

// Courses returns every known course sorted by id.
func (r *Registry) Courses() []models.Course {
	courses := make([]models.Course, 0, len(r.courses))
	for _, c := range r.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses
}

// Classrooms returns every known classroom sorted by id.
func (r *Registry) Classrooms() []models.Classroom {
	rooms := make([]models.Classroom, 0, len(r.classrooms))
	for _, c := range r.classrooms {
		rooms = append(rooms, c)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// IsQualified holds when the course lists the teacher. A course without a list
// defers to the qualifications the teacher declares.
func (r *Registry) IsQualified(course models.Course, teacher models.Teacher) bool {
	if len(course.QualifiedTeacherIDs) > 0 {
		return course.ListsTeacher(teacher.ID)
	}
	return teacher.ListsCourse(course.ID)
}

// EligibleTeachers returns the known teachers qualified for the course, sorted by id.
func (r *Registry) EligibleTeachers(course models.Course) []models.Teacher {
	var eligible []models.Teacher
	for _, t := range r.teachers {
		if r.IsQualified(course, t) {
			eligible = append(eligible, t)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible
}

// RoomCompatible applies the category compatibility rules.
func (r *Registry) RoomCompatible(courseCategory, roomCategory string) bool {
	course := strings.ToLower(strings.TrimSpace(courseCategory))
	if course == "" {
		return true
	}
	room := strings.ToLower(strings.TrimSpace(roomCategory))
	if allowed, ok := r.compat[course]; ok {
		return allowed[room]
	}
	return course == room
}

// CapacityOK reports whether the classroom seats every enrolled student.
func (r *Registry) CapacityOK(course models.Course, room models.Classroom) bool {
	return room.Capacity >= course.MaxStudents
}

// EligibleClassrooms returns classrooms passing capacity and category checks, sorted by id.
// The counters tell how many rooms were rejected by each check.
func (r *Registry) EligibleClassrooms(course models.Course) (rooms []models.Classroom, tooSmall, wrongCategory int) {
	for _, room := range r.classrooms {
		switch {
		case !r.CapacityOK(course, room):
			tooSmall++
		case !r.RoomCompatible(course.RoomCategory, room.Category):
			wrongCategory++
		default:
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, tooSmall, wrongCategory
}

// ExceedsWeekly reports whether adding hours breaks the teacher's weekly cap.
func ExceedsWeekly(teacher models.Teacher, current, adding float64) bool {
	return teacher.MaxWeeklyHours > 0 && current+adding > teacher.MaxWeeklyHours+hoursEpsilon
}

// ExceedsDaily reports whether adding hours breaks the teacher's daily cap.
func ExceedsDaily(teacher models.Teacher, current, adding float64) bool {
	return teacher.MaxDailyHours > 0 && current+adding > teacher.MaxDailyHours+hoursEpsilon
}

// IsFeasible evaluates every hard check for one candidate and returns all violations in check order.
func (r *Registry) IsFeasible(course models.Course, teacher models.Teacher, room models.Classroom, day int, slot models.TimeSlot, view View) (bool, []Violation) {
	var violations []Violation
	dayName := models.DayName(day)

	if view.IsTeacherBusy(teacher.ID, day, slot.ID) {
		violations = append(violations, Violation{
			Kind:    ViolationTeacherBusy,
			Message: fmt.Sprintf("teacher %s already teaches on %s slot %s", teacher.ID, dayName, slot.ID),
		})
	}
	if view.IsClassroomBusy(room.ID, day, slot.ID) {
		violations = append(violations, Violation{
			Kind:    ViolationClassroomBusy,
			Message: fmt.Sprintf("classroom %s already booked on %s slot %s", room.ID, dayName, slot.ID),
		})
	}
	if !r.CapacityOK(course, room) {
		violations = append(violations, Violation{
			Kind:    ViolationCapacity,
			Message: fmt.Sprintf("classroom %s seats %d, course %s needs %d", room.ID, room.Capacity, course.ID, course.MaxStudents),
		})
	}
	if !r.RoomCompatible(course.RoomCategory, room.Category) {
		violations = append(violations, Violation{
			Kind:    ViolationRoomCategory,
			Message: fmt.Sprintf("classroom %s category %q does not suit %q", room.ID, room.Category, course.RoomCategory),
		})
	}
	hours := course.SessionHours()
	if ExceedsWeekly(teacher, view.TeacherHours(teacher.ID), hours) {
		violations = append(violations, Violation{
			Kind:    ViolationWeeklyWorkload,
			Message: fmt.Sprintf("teacher %s would exceed %.1f weekly hours", teacher.ID, teacher.MaxWeeklyHours),
		})
	}
	if ExceedsDaily(teacher, view.TeacherDailyHours(teacher.ID, day), hours) {
		violations = append(violations, Violation{
			Kind:    ViolationDailyWorkload,
			Message: fmt.Sprintf("teacher %s would exceed %.1f hours on %s", teacher.ID, teacher.MaxDailyHours, dayName),
		})
	}
	if !r.IsQualified(course, teacher) {
		violations = append(violations, Violation{
			Kind:    ViolationUnqualified,
			Message: fmt.Sprintf("teacher %s is not qualified for course %s", teacher.ID, course.ID),
		})
	}

	return len(violations) == 0, violations
}

// consecutiveRun returns the length of the run of adjacent orders that contains target.
func consecutiveRun(orders map[int]bool, target int) int {
	run := 1
	for o := target - 1; orders[o]; o-- {
		run++
	}
	for o := target + 1; orders[o]; o++ {
		run++
	}
	return run
}

// slotOrders maps the teacher's sessions on a day to their slot ordinals.
func (r *Registry) slotOrders(sessions []TeacherSession) map[int]bool {
	orders := make(map[int]bool, len(sessions))
	for _, s := range sessions {
		if slot, ok := r.slots[s.TimeSlotID]; ok {
			orders[slot.Order] = true
		}
	}
	return orders
}
