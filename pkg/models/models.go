package models

import (
	"fmt"
	"strconv"

	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
)

// EmployeeAvailability is one employee row of a JSON availability payload.
type EmployeeAvailability struct {
	ID           string         `json:"id"`
	MaxHours     int            `json:"max_hours"`
	Availability map[string]int `json:"availability"` // shift -> 0/1, missing means 0
}

// AvailabilityInput is the JSON body of the schedule endpoint.
type AvailabilityInput struct {
	Shifts    []string               `json:"shifts"`
	Employees []EmployeeAvailability `json:"employees"`
	Seed      *int64                 `json:"seed,omitempty"`
}

// Table converts the payload into the tabular form the scheduler validates.
// Availability entries for shifts that are not listed are rejected here since
// the table has no column to carry them.
func (in AvailabilityInput) Table() (scheduler.Table, error) {
	known := make(map[string]bool, len(in.Shifts))
	for _, s := range in.Shifts {
		known[s] = true
	}

	t := scheduler.Table{
		Header: append([]string{"employee_id", "max_hours_per_week"}, in.Shifts...),
		Rows:   make([][]string, 0, len(in.Employees)),
	}
	for i, e := range in.Employees {
		for s := range e.Availability {
			if !known[s] {
				return scheduler.Table{}, &scheduler.MalformedInputError{
					Reason: fmt.Sprintf("availability for unlisted shift %q", s),
					Row:    i,
					Column: s,
				}
			}
		}

		row := make([]string, 0, len(t.Header))
		row = append(row, e.ID, strconv.Itoa(e.MaxHours))
		for _, s := range in.Shifts {
			row = append(row, strconv.Itoa(e.Availability[s]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ScheduleRow is one employee's line of a schedule, cells aligned with
// ScheduleView.Shifts.
type ScheduleRow struct {
	Employee    string `json:"employee"`
	Assignments []int  `json:"assignments"`
}

// ScheduleView is the JSON rendering of an exported schedule.
type ScheduleView struct {
	Shifts []string      `json:"shifts"`
	Rows   []ScheduleRow `json:"rows"`
}

// NewScheduleView converts an export table. The first column is the
// employee id.
func NewScheduleView(t scheduler.Table) ScheduleView {
	v := ScheduleView{Rows: make([]ScheduleRow, 0, len(t.Rows))}
	if len(t.Header) > 0 {
		v.Shifts = append([]string{}, t.Header[1:]...)
	}
	for _, r := range t.Rows {
		if len(r) == 0 {
			continue
		}
		row := ScheduleRow{Employee: r[0], Assignments: make([]int, 0, len(r)-1)}
		for _, cell := range r[1:] {
			n, _ := strconv.Atoi(cell)
			row.Assignments = append(row.Assignments, n)
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

// ScheduleResponse is returned when a schedule is solved or fetched.
type ScheduleResponse struct {
	SessionID       string               `json:"session_id"`
	Schedule        ScheduleView         `json:"schedule"`
	UncoveredShifts []string             `json:"uncovered_shifts"`
	Conflicts       []scheduler.Conflict `json:"conflicts,omitempty"`
	FairnessScore   float64              `json:"fairness_score"`
	Modified        bool                 `json:"modified"`
}

// NewScheduleResponse renders st for the session id.
func NewScheduleResponse(id string, st *scheduler.ScheduleState) ScheduleResponse {
	uncovered := st.Uncovered()
	if uncovered == nil {
		uncovered = []string{}
	}
	return ScheduleResponse{
		SessionID:       id,
		Schedule:        NewScheduleView(st.Export()),
		UncoveredShifts: uncovered,
		Conflicts:       st.Conflicts(),
		FairnessScore:   st.FairnessScore(),
		Modified:        st.Modified(),
	}
}

// SwapRequest is the body of the swap endpoint.
type SwapRequest struct {
	EmployeeA string `json:"employee_a" binding:"required"`
	EmployeeB string `json:"employee_b" binding:"required"`
	Shift     string `json:"shift" binding:"required"`
}

// SwapResponse reports whether the swap was applied.
type SwapResponse struct {
	Swapped bool   `json:"swapped"`
	Message string `json:"message"`
}
