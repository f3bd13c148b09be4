package scheduler

// Swap exchanges shift between employees a and b.
//
// The exchange is only permitted when both employees currently hold the
// shift; in that case the cells are swapped (leaving both set) and Swap
// reports true. Otherwise nothing changes and Swap reports false, which is an
// ordinary outcome rather than an error. Unknown identifiers return an
// *UnknownKeyError without touching the state.
func Swap(st *ScheduleState, a, b, shift string) (bool, error) {
	ea, s, err := st.model.lookup(a, shift)
	if err != nil {
		return false, err
	}
	eb, _, err := st.model.lookup(b, shift)
	if err != nil {
		return false, err
	}

	va, vb := st.assignment[ea][s], st.assignment[eb][s]
	if !va || !vb {
		return false, nil
	}
	st.assignment[ea][s], st.assignment[eb][s] = vb, va
	return true, nil
}
