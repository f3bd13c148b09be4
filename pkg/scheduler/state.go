package scheduler

import (
	"fmt"
	"math"
)

// Conflict explains why a shift was left without an assignee.
type Conflict struct {
	Shift   string   `json:"shift"`
	Reasons []string `json:"reasons"`
}

// ScheduleState is the assignment matrix produced by Solve together with the
// snapshot taken right after solving. It is not safe for concurrent use.
type ScheduleState struct {
	model      *AvailabilityModel
	assignment [][]bool // [employee][shift]
	original   [][]bool
	conflicts  []Conflict
}

func newScheduleState(m *AvailabilityModel) *ScheduleState {
	return &ScheduleState{
		model:      m,
		assignment: newMatrix(len(m.employees), len(m.shifts)),
	}
}

// Model returns the availability the schedule was solved against.
func (st *ScheduleState) Model() *AvailabilityModel { return st.model }

// Export returns the current assignment as a table indexed by employee and
// columned by shift, with 0/1 cells.
func (st *ScheduleState) Export() Table {
	t := Table{Header: append([]string{"employee_id"}, st.model.shifts...)}
	for e, id := range st.model.employees {
		row := make([]string, 0, len(t.Header))
		row = append(row, id)
		for _, v := range st.assignment[e] {
			row = append(row, flag(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Reset discards every edit made since Solve.
func (st *ScheduleState) Reset() {
	st.assignment = cloneMatrix(st.original)
}

// Assigned reports whether employee currently holds shift.
func (st *ScheduleState) Assigned(employee, shift string) (bool, error) {
	e, s, err := st.model.lookup(employee, shift)
	if err != nil {
		return false, err
	}
	return st.assignment[e][s], nil
}

// AssignedCount returns the number of shifts employee currently holds.
func (st *ScheduleState) AssignedCount(employee string) (int, error) {
	e, ok := st.model.empIndex[employee]
	if !ok {
		return 0, &UnknownKeyError{Kind: "employee", Key: employee}
	}
	return st.load(e), nil
}

// Assignees returns the employees currently holding shift, in model order.
func (st *ScheduleState) Assignees(shift string) ([]string, error) {
	s, ok := st.model.shiftIndex[shift]
	if !ok {
		return nil, &UnknownKeyError{Kind: "shift", Key: shift}
	}
	var out []string
	for e, row := range st.assignment {
		if row[s] {
			out = append(out, st.model.employees[e])
		}
	}
	return out, nil
}

// Uncovered lists the shifts nobody currently holds, in shift order.
func (st *ScheduleState) Uncovered() []string {
	var out []string
	for s, id := range st.model.shifts {
		covered := false
		for e := range st.assignment {
			if st.assignment[e][s] {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, id)
		}
	}
	return out
}

// Conflicts returns the reasons recorded by Solve for each shift it could not
// cover.
func (st *ScheduleState) Conflicts() []Conflict {
	return append([]Conflict(nil), st.conflicts...)
}

// Modified reports whether the assignment differs from the post-solve
// snapshot.
func (st *ScheduleState) Modified() bool {
	for e := range st.assignment {
		for s := range st.assignment[e] {
			if st.assignment[e][s] != st.original[e][s] {
				return true
			}
		}
	}
	return false
}

// FairnessScore returns a percentage (0-100) describing how evenly shifts
// are spread across employees. 100 means every employee holds the same
// number of shifts.
func (st *ScheduleState) FairnessScore() float64 {
	n := len(st.assignment)
	if n == 0 {
		return 100.0
	}

	var sum float64
	for e := range st.assignment {
		sum += float64(st.load(e))
	}
	if sum == 0 {
		return 100.0
	}
	mean := sum / float64(n)

	var varianceSum float64
	for e := range st.assignment {
		diff := float64(st.load(e)) - mean
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / float64(n))

	score := (1.0 - stdDev/mean) * 100.0
	if score < 0 {
		return 0.0
	}
	return score
}

func (st *ScheduleState) load(e int) int {
	n := 0
	for _, v := range st.assignment[e] {
		if v {
			n++
		}
	}
	return n
}

// Snapshot is the serialisable form of a ScheduleState.
type Snapshot struct {
	Availability Table      `json:"availability"`
	Assignment   [][]bool   `json:"assignment"`
	Original     [][]bool   `json:"original"`
	Conflicts    []Conflict `json:"conflicts,omitempty"`
}

// Snapshot captures the state so it can be stored outside the process.
func (st *ScheduleState) Snapshot() Snapshot {
	return Snapshot{
		Availability: st.model.Table(),
		Assignment:   cloneMatrix(st.assignment),
		Original:     cloneMatrix(st.original),
		Conflicts:    st.Conflicts(),
	}
}

// RestoreState rebuilds a ScheduleState from a Snapshot.
func RestoreState(snap Snapshot) (*ScheduleState, error) {
	m, err := NewAvailabilityModel(snap.Availability)
	if err != nil {
		return nil, fmt.Errorf("restore availability: %w", err)
	}
	if !matrixShape(snap.Assignment, len(m.employees), len(m.shifts)) ||
		!matrixShape(snap.Original, len(m.employees), len(m.shifts)) {
		return nil, malformed(-1, "", "snapshot matrix does not match %d employees x %d shifts", len(m.employees), len(m.shifts))
	}
	return &ScheduleState{
		model:      m,
		assignment: cloneMatrix(snap.Assignment),
		original:   cloneMatrix(snap.Original),
		conflicts:  append([]Conflict(nil), snap.Conflicts...),
	}, nil
}

func newMatrix(rows, cols int) [][]bool {
	m := make([][]bool, rows)
	for i := range m {
		m[i] = make([]bool, cols)
	}
	return m
}

func cloneMatrix(src [][]bool) [][]bool {
	dst := make([][]bool, len(src))
	for i, row := range src {
		dst[i] = append([]bool(nil), row...)
	}
	return dst
}

func matrixShape(m [][]bool, rows, cols int) bool {
	if len(m) != rows {
		return false
	}
	for _, row := range m {
		if len(row) != cols {
			return false
		}
	}
	return true
}
