package scheduler

import (
	"strconv"
	"strings"
)

// Column names recognised in availability tables. The CamelCase forms are the
// ones produced by the spreadsheet template users fill in.
var (
	employeeColumns = []string{"employee_id", "Employee", "employee"}
	capacityColumns = []string{"max_hours_per_week", "MaxHoursPerWeek", "max_hours"}
)

// AvailabilityModel is a validated, read-only view of who can work which shift
// and how many shifts each employee may take in a week.
type AvailabilityModel struct {
	employees  []string
	shifts     []string
	empIndex   map[string]int
	shiftIndex map[string]int
	available  [][]bool // [employee][shift]
	maxHours   []int
}

// NewAvailabilityModel validates t and builds a model from it. Any column that
// is neither the employee column nor the capacity column is a shift, in header
// order.
func NewAvailabilityModel(t Table) (*AvailabilityModel, error) {
	empCol, capCol := -1, -1
	var shiftCols []int
	var shifts []string
	shiftIndex := make(map[string]int)

	for i, name := range t.Header {
		switch {
		case empCol < 0 && contains(employeeColumns, name):
			empCol = i
		case capCol < 0 && contains(capacityColumns, name):
			capCol = i
		default:
			if name == "" {
				return nil, malformed(-1, "", "empty shift header at position %d", i+1)
			}
			if _, dup := shiftIndex[name]; dup {
				return nil, malformed(-1, name, "duplicate shift column")
			}
			shiftIndex[name] = len(shifts)
			shifts = append(shifts, name)
			shiftCols = append(shiftCols, i)
		}
	}
	if empCol < 0 {
		return nil, malformed(-1, "", "missing employee column (one of %s)", strings.Join(employeeColumns, ", "))
	}
	if capCol < 0 {
		return nil, malformed(-1, "", "missing capacity column (one of %s)", strings.Join(capacityColumns, ", "))
	}

	m := &AvailabilityModel{
		employees:  make([]string, 0, len(t.Rows)),
		shifts:     shifts,
		empIndex:   make(map[string]int, len(t.Rows)),
		shiftIndex: shiftIndex,
		available:  make([][]bool, 0, len(t.Rows)),
		maxHours:   make([]int, 0, len(t.Rows)),
	}

	for row, record := range t.Rows {
		if len(record) != len(t.Header) {
			return nil, malformed(row, "", "expected %d cells, got %d", len(t.Header), len(record))
		}

		id := strings.TrimSpace(record[empCol])
		if id == "" {
			return nil, malformed(row, t.Header[empCol], "empty employee identifier")
		}
		if _, dup := m.empIndex[id]; dup {
			return nil, malformed(row, t.Header[empCol], "duplicate employee %q", id)
		}

		capacity, err := strconv.Atoi(strings.TrimSpace(record[capCol]))
		if err != nil || capacity < 0 {
			return nil, malformed(row, t.Header[capCol], "capacity %q is not a non-negative integer", record[capCol])
		}

		avail := make([]bool, len(shifts))
		for s, col := range shiftCols {
			v, ok := parseFlag(record[col])
			if !ok {
				return nil, malformed(row, t.Header[col], "availability %q is not 0 or 1", record[col])
			}
			avail[s] = v
		}

		m.empIndex[id] = len(m.employees)
		m.employees = append(m.employees, id)
		m.available = append(m.available, avail)
		m.maxHours = append(m.maxHours, capacity)
	}

	return m, nil
}

// parseFlag accepts 0/1 cells. Blank cells mean "not available".
func parseFlag(cell string) (bool, bool) {
	switch strings.TrimSpace(cell) {
	case "1":
		return true, true
	case "0", "":
		return false, true
	}
	return false, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Employees returns the employee identifiers in input order.
func (m *AvailabilityModel) Employees() []string {
	return append([]string(nil), m.employees...)
}

// Shifts returns the shift identifiers in input order.
func (m *AvailabilityModel) Shifts() []string {
	return append([]string(nil), m.shifts...)
}

// Available reports whether employee may work shift.
func (m *AvailabilityModel) Available(employee, shift string) (bool, error) {
	e, s, err := m.lookup(employee, shift)
	if err != nil {
		return false, err
	}
	return m.available[e][s], nil
}

// MaxHours returns the weekly shift capacity of employee.
func (m *AvailabilityModel) MaxHours(employee string) (int, error) {
	e, ok := m.empIndex[employee]
	if !ok {
		return 0, &UnknownKeyError{Kind: "employee", Key: employee}
	}
	return m.maxHours[e], nil
}

// Table renders the model back into its tabular form using the canonical
// column names.
func (m *AvailabilityModel) Table() Table {
	t := Table{Header: append([]string{"employee_id", "max_hours_per_week"}, m.shifts...)}
	for e, id := range m.employees {
		row := make([]string, 0, len(t.Header))
		row = append(row, id, strconv.Itoa(m.maxHours[e]))
		for _, v := range m.available[e] {
			row = append(row, flag(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (m *AvailabilityModel) lookup(employee, shift string) (int, int, error) {
	e, ok := m.empIndex[employee]
	if !ok {
		return 0, 0, &UnknownKeyError{Kind: "employee", Key: employee}
	}
	s, ok := m.shiftIndex[shift]
	if !ok {
		return 0, 0, &UnknownKeyError{Kind: "shift", Key: shift}
	}
	return e, s, nil
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
