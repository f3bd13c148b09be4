package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// Solve assigns at most one employee to every shift of m.
//
// Shifts are filled in declared order. For each shift the candidates are the
// employees who are available and still under their weekly capacity; the one
// holding the fewest shifts so far wins, ties going to whoever comes first in
// a random permutation of the employees drawn once per call. A shift with no
// candidates stays uncovered and gets a Conflict entry.
//
// rng seeds that permutation. Pass nil to get a fresh generator seeded from
// the clock; Solve never uses the package-level source.
func Solve(m *AvailabilityModel, rng *rand.Rand) *ScheduleState {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	st := newScheduleState(m)

	order := make([]int, len(m.employees))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	load := make([]int, len(m.employees))

	for s, shiftID := range m.shifts {
		best := -1
		atMax, unavailable := 0, 0

		for _, e := range order {
			if !m.available[e][s] {
				unavailable++
				continue
			}
			if load[e] >= m.maxHours[e] {
				atMax++
				continue
			}
			// Strictly less keeps the earliest employee in order on ties.
			if best < 0 || load[e] < load[best] {
				best = e
			}
		}

		if best >= 0 {
			st.assignment[best][s] = true
			load[best]++
			continue
		}

		var reasons []string
		if atMax > 0 {
			reasons = append(reasons, fmt.Sprintf("%d employees were at max hours", atMax))
		}
		if unavailable > 0 {
			reasons = append(reasons, fmt.Sprintf("%d employees were unavailable", unavailable))
		}
		if len(reasons) == 0 {
			reasons = append(reasons, "no employees available")
		}
		st.conflicts = append(st.conflicts, Conflict{Shift: shiftID, Reasons: reasons})
	}

	st.original = cloneMatrix(st.assignment)
	return st
}
