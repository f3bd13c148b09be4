package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput matches any *MalformedInputError via errors.Is.
	ErrMalformedInput = errors.New("malformed availability input")
	// ErrUnknownKey matches any *UnknownKeyError via errors.Is.
	ErrUnknownKey = errors.New("unknown key")
)

// MalformedInputError is returned when an availability table cannot be
// turned into a model. Row and Column are zero-based data positions, -1 when
// the problem is not tied to a cell.
type MalformedInputError struct {
	Reason string
	Row    int
	Column string
}

func (e *MalformedInputError) Error() string {
	switch {
	case e.Row >= 0 && e.Column != "":
		return fmt.Sprintf("malformed input at row %d, column %q: %s", e.Row+1, e.Column, e.Reason)
	case e.Row >= 0:
		return fmt.Sprintf("malformed input at row %d: %s", e.Row+1, e.Reason)
	case e.Column != "":
		return fmt.Sprintf("malformed input in column %q: %s", e.Column, e.Reason)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

func malformed(row int, column, format string, args ...any) error {
	return &MalformedInputError{Reason: fmt.Sprintf(format, args...), Row: row, Column: column}
}

// UnknownKeyError reports an employee or shift identifier that is not part
// of the schedule's index.
type UnknownKeyError struct {
	Kind string // "employee" or "shift"
	Key  string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Key)
}

func (e *UnknownKeyError) Is(target error) bool { return target == ErrUnknownKey }
