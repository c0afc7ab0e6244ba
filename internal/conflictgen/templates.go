package conflictgen

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/noah-isme/sma-adp-timetable/internal/models"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
)

// state is the working copy a template mutates.
type state struct {
	rng         *rand.Rand
	reg         *scheduler.Registry
	assignments []models.Assignment
	prefix      string
	nextID      int
	used        map[string]bool
}

func newState(rng *rand.Rand, reg *scheduler.Registry, assignments []models.Assignment, prefix string) *state {
	return &state{
		rng:         rng,
		reg:         reg,
		assignments: append([]models.Assignment(nil), assignments...),
		prefix:      prefix,
		used:        make(map[string]bool),
	}
}

// byID returns assignment indexes ordered by id so pair enumeration is stable.
func (st *state) byID() []int {
	order := make([]int, len(st.assignments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return st.assignments[order[a]].ID < st.assignments[order[b]].ID })
	return order
}

func sameCell(a, b models.Assignment) bool {
	return a.TermID == b.TermID && a.DayOfWeek == b.DayOfWeek && a.TimeSlotID == b.TimeSlotID
}

// teacherCount counts the teacher's sessions in a's cell, skipping index skip.
func (st *state) teacherCount(teacherID string, cell models.Assignment, skip int) int {
	n := 0
	for i, a := range st.assignments {
		if i != skip && a.TeacherID == teacherID && sameCell(a, cell) {
			n++
		}
	}
	return n
}

func (st *state) roomCount(classroomID string, cell models.Assignment, skip int) int {
	n := 0
	for i, a := range st.assignments {
		if i != skip && a.ClassroomID == classroomID && sameCell(a, cell) {
			n++
		}
	}
	return n
}

func (st *state) dailyHours(teacherID, termID string, day, skip int) float64 {
	var hours float64
	for i, a := range st.assignments {
		if i == skip || a.TeacherID != teacherID || a.TermID != termID || a.DayOfWeek != day {
			continue
		}
		if c, ok := st.reg.Course(a.CourseID); ok {
			hours += c.SessionHours()
		}
	}
	return hours
}

// fitsDay reports whether moving assignment j onto day keeps its teacher within the daily cap.
func (st *state) fitsDay(j, day int) bool {
	b := st.assignments[j]
	teacher, ok := st.reg.Teacher(b.TeacherID)
	if !ok {
		return false
	}
	course, ok := st.reg.Course(b.CourseID)
	if !ok {
		return false
	}
	return !scheduler.ExceedsDaily(teacher, st.dailyHours(b.TeacherID, b.TermID, day, j), course.SessionHours())
}

func (st *state) moveTo(j int, cell models.Assignment) {
	st.assignments[j].DayOfWeek = cell.DayOfWeek
	st.assignments[j].TimeSlotID = cell.TimeSlotID
}

func (st *state) markUsed(ids ...string) {
	for _, id := range ids {
		st.used[id] = true
	}
}

func (st *state) newID() string {
	st.nextID++
	return fmt.Sprintf("%s-injected-%d", st.prefix, st.nextID)
}

func pairIDs(a, b string) []string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids
}

type pair struct{ anchor, moved int }

// teacherPairs lists moves that create a single teacher double booking and nothing else.
func (st *state) teacherPairs() []pair {
	var pairs []pair
	order := st.byID()
	for _, i := range order {
		for _, j := range order {
			a, b := st.assignments[i], st.assignments[j]
			if i == j || st.used[a.ID] || st.used[b.ID] {
				continue
			}
			if a.TeacherID == "" || a.TeacherID != b.TeacherID || a.TermID != b.TermID || sameCell(a, b) {
				continue
			}
			if a.ClassroomID == b.ClassroomID || st.roomCount(b.ClassroomID, a, j) > 0 {
				continue
			}
			if st.teacherCount(a.TeacherID, a, j) != 1 || !st.fitsDay(j, a.DayOfWeek) {
				continue
			}
			pairs = append(pairs, pair{anchor: i, moved: j})
		}
	}
	return pairs
}

func applyTeacherDoubleBooking(st *state) ([]ExpectedViolation, bool) {
	pairs := st.teacherPairs()
	if len(pairs) == 0 {
		return nil, false
	}
	p := pairs[st.rng.Intn(len(pairs))]
	anchor := st.assignments[p.anchor]
	st.moveTo(p.moved, anchor)
	st.markUsed(anchor.ID, st.assignments[p.moved].ID)
	return []ExpectedViolation{{
		Type:      models.ConflictTeacherDoubleBooking,
		EntityIDs: pairIDs(anchor.ID, st.assignments[p.moved].ID),
	}}, true
}

// classroomPairs lists moves that put a session into another teacher's classroom cell
// without breaking capacity, category, teacher availability or daily load.
func (st *state) classroomPairs() []pair {
	var pairs []pair
	order := st.byID()
	for _, i := range order {
		for _, j := range order {
			a, b := st.assignments[i], st.assignments[j]
			if i == j || st.used[a.ID] || st.used[b.ID] {
				continue
			}
			if a.ClassroomID == "" || a.ClassroomID == b.ClassroomID || a.TeacherID == b.TeacherID || a.TermID != b.TermID {
				continue
			}
			room, ok := st.reg.Classroom(a.ClassroomID)
			if !ok {
				continue
			}
			course, ok := st.reg.Course(b.CourseID)
			if !ok || !st.reg.CapacityOK(course, room) || !st.reg.RoomCompatible(course.RoomCategory, room.Category) {
				continue
			}
			if st.roomCount(a.ClassroomID, a, j) != 1 || st.teacherCount(b.TeacherID, a, j) > 0 || !st.fitsDay(j, a.DayOfWeek) {
				continue
			}
			pairs = append(pairs, pair{anchor: i, moved: j})
		}
	}
	return pairs
}

func applyClassroomDoubleBooking(st *state) ([]ExpectedViolation, bool) {
	pairs := st.classroomPairs()
	if len(pairs) == 0 {
		return nil, false
	}
	p := pairs[st.rng.Intn(len(pairs))]
	anchor := st.assignments[p.anchor]
	st.moveTo(p.moved, anchor)
	st.assignments[p.moved].ClassroomID = anchor.ClassroomID
	st.markUsed(anchor.ID, st.assignments[p.moved].ID)
	return []ExpectedViolation{{
		Type:      models.ConflictClassroomDoubleBooking,
		EntityIDs: pairIDs(anchor.ID, st.assignments[p.moved].ID),
	}}, true
}

func applyCapacityOverflow(st *state) ([]ExpectedViolation, bool) {
	type move struct {
		index int
		room  string
	}
	var moves []move
	for _, i := range st.byID() {
		a := st.assignments[i]
		if st.used[a.ID] {
			continue
		}
		course, ok := st.reg.Course(a.CourseID)
		if !ok {
			continue
		}
		for _, room := range st.reg.Classrooms() {
			if room.ID == a.ClassroomID || st.reg.CapacityOK(course, room) || !st.reg.RoomCompatible(course.RoomCategory, room.Category) {
				continue
			}
			if st.roomCount(room.ID, a, i) > 0 {
				continue
			}
			moves = append(moves, move{index: i, room: room.ID})
		}
	}
	if len(moves) == 0 {
		return nil, false
	}
	m := moves[st.rng.Intn(len(moves))]
	st.assignments[m.index].ClassroomID = m.room
	id := st.assignments[m.index].ID
	st.markUsed(id)
	return []ExpectedViolation{{Type: models.ConflictCapacityOverflow, EntityIDs: []string{id}}}, true
}

func (st *state) sortedCourseIDs() []string {
	var ids []string
	for _, c := range st.reg.Courses() {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// clone adds a new session of courseID in the anchor's teacher, classroom and cell.
func (st *state) clone(anchor models.Assignment, courseID string) models.Assignment {
	extra := models.Assignment{
		ID:          st.newID(),
		TermID:      anchor.TermID,
		CourseID:    courseID,
		TeacherID:   anchor.TeacherID,
		ClassroomID: anchor.ClassroomID,
		DayOfWeek:   anchor.DayOfWeek,
		TimeSlotID:  anchor.TimeSlotID,
		Session:     1,
	}
	st.assignments = append(st.assignments, extra)
	return extra
}

func applyMultiResource(st *state) ([]ExpectedViolation, bool) {
	courses := st.sortedCourseIDs()
	order := st.byID()
	if len(order) == 0 || len(courses) < 2 {
		return nil, false
	}
	anchor := st.assignments[order[st.rng.Intn(len(order))]]
	var others []string
	for _, id := range courses {
		if id != anchor.CourseID {
			others = append(others, id)
		}
	}
	extra := st.clone(anchor, others[st.rng.Intn(len(others))])
	st.markUsed(anchor.ID, extra.ID)
	return []ExpectedViolation{
		{Type: models.ConflictTeacherDoubleBooking, EntityIDs: pairIDs(anchor.ID, extra.ID)},
		{Type: models.ConflictClassroomDoubleBooking, EntityIDs: pairIDs(anchor.ID, extra.ID)},
	}, true
}

func applyDependencyChain(st *state) ([]ExpectedViolation, bool) {
	byTeacher := make(map[string][]int)
	var teachers []string
	for _, i := range st.byID() {
		a := st.assignments[i]
		if a.TeacherID == "" {
			continue
		}
		if _, ok := byTeacher[a.TeacherID]; !ok {
			teachers = append(teachers, a.TeacherID)
		}
		byTeacher[a.TeacherID] = append(byTeacher[a.TeacherID], i)
	}
	var candidates []string
	for _, id := range teachers {
		if len(byTeacher[id]) >= 3 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Strings(candidates)
	chain := byTeacher[candidates[st.rng.Intn(len(candidates))]]
	sort.SliceStable(chain, func(a, b int) bool {
		x, y := st.assignments[chain[a]], st.assignments[chain[b]]
		if x.DayOfWeek != y.DayOfWeek {
			return x.DayOfWeek < y.DayOfWeek
		}
		return st.slotOrder(x.TimeSlotID) < st.slotOrder(y.TimeSlotID)
	})
	anchor := st.assignments[chain[0]]
	ids := []string{anchor.ID}
	for _, idx := range chain[1:3] {
		st.moveTo(idx, anchor)
		ids = append(ids, st.assignments[idx].ID)
	}
	sort.Strings(ids)
	st.markUsed(ids...)
	return []ExpectedViolation{{Type: models.ConflictTeacherDoubleBooking, EntityIDs: ids}}, true
}

func (st *state) slotOrder(id string) int {
	if slot, ok := st.reg.TimeSlot(id); ok {
		return slot.Order
	}
	return 0
}

func applyCascading(st *state) ([]ExpectedViolation, bool) {
	var expected []ExpectedViolation
	for round := 0; round < 3; round++ {
		found, ok := applyTeacherDoubleBooking(st)
		if !ok {
			break
		}
		expected = append(expected, found...)
	}
	if found, ok := applyCapacityOverflow(st); ok {
		expected = append(expected, found...)
	}
	if len(expected) < 2 {
		return nil, false
	}
	return expected, true
}

func applyMultiDimensional(st *state) ([]ExpectedViolation, bool) {
	for _, i := range st.byID() {
		anchor := st.assignments[i]
		teacher, ok := st.reg.Teacher(anchor.TeacherID)
		if !ok {
			continue
		}
		room, ok := st.reg.Classroom(anchor.ClassroomID)
		if !ok {
			continue
		}
		var pick *models.Course
		for _, id := range st.sortedCourseIDs() {
			course, _ := st.reg.Course(id)
			if id == anchor.CourseID || st.reg.IsQualified(course, teacher) {
				continue
			}
			if pick == nil || course.MaxStudents > pick.MaxStudents {
				c := course
				pick = &c
			}
		}
		if pick == nil {
			continue
		}
		extra := st.clone(anchor, pick.ID)
		st.markUsed(anchor.ID, extra.ID)
		expected := []ExpectedViolation{
			{Type: models.ConflictTeacherDoubleBooking, EntityIDs: pairIDs(anchor.ID, extra.ID)},
			{Type: models.ConflictClassroomDoubleBooking, EntityIDs: pairIDs(anchor.ID, extra.ID)},
			{Type: models.ConflictUnqualifiedTeacher, EntityIDs: []string{extra.ID}},
		}
		if !st.reg.CapacityOK(*pick, room) {
			expected = append(expected, ExpectedViolation{Type: models.ConflictCapacityOverflow, EntityIDs: []string{extra.ID}})
		}
		return expected, true
	}
	return nil, false
}
