package records

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidPayload means a submitted application document does not
	// have the expected shape.
	ErrInvalidPayload = errors.New("invalid application payload")

	// ErrInvalidNotification means a decision could not be accepted.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrInvalidStatus means a status value is not one of the lifecycle states.
	ErrInvalidStatus = errors.New("invalid status")
)

// ValidationError lists what is wrong with caller input. It matches its
// Err with errors.Is.
type ValidationError struct {
	Err      error
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, problems ...string) error {
	return &ValidationError{Err: err, Problems: problems}
}
