package spec

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrIllegalState is returned when an operation is not permitted in the current lifecycle
	// state: mutating a frozen spec, reading post-freeze data from a fluid spec, adding
	// operations to a controller that is executing, or setting an exactly-once field twice.
	ErrIllegalState = errors.New("lattice: illegal state")

	// ErrIllegalArgument is returned for nil, duplicate or non-comparable handles, negative
	// counts and missing required inputs. No state is changed.
	ErrIllegalArgument = errors.New("lattice: illegal argument")

	// ErrValidation is returned when a spec fails validation during freeze.
	// Use errors.As with *ValidationError for details.
	ErrValidation = errors.New("lattice: spec validation failed")

	// ErrNoEngine is returned by Exec when the controller has no execution engine.
	ErrNoEngine = errors.New("lattice: no execution engine configured")
)

// ValidationError describes a failed FLUID to FROZEN transition.
type ValidationError struct {
	From    State
	To      State
	Spec    Spec
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lattice: cannot transition %s from %s to %s: %s", e.Spec, e.From, e.To, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// invalid builds a ValidationError for s.
func invalid(s Spec, format string, args ...any) error {
	return &ValidationError{
		From:    Fluid,
		To:      Frozen,
		Spec:    s,
		Message: fmt.Sprintf(format, args...),
	}
}

func illegalState(format string, args ...any) error {
	return errors.Wrapf(ErrIllegalState, format, args...)
}

func illegalArgument(format string, args ...any) error {
	return errors.Wrapf(ErrIllegalArgument, format, args...)
}
