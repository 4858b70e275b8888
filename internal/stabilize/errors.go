package stabilize

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

// InvalidInputError reports a sequence rejected before any stage ran:
// empty, malformed, or frames of different sizes.
type InvalidInputError struct {
	Err error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// NumericDegeneracyError reports a non-finite sample produced by a stage.
type NumericDegeneracyError struct {
	Stage string
	Frame int
	Index int
	Value float64
}

func (e *NumericDegeneracyError) Error() string {
	return fmt.Sprintf("stage %s produced %v at frame %d sample %d", e.Stage, e.Value, e.Frame, e.Index)
}

func (e *NumericDegeneracyError) Is(target error) bool { return target == ErrNumericDegeneracy }
