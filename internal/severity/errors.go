package severity

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every input validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Constraint names the input rule that was violated.
type Constraint string

const (
	ConstraintNotString    Constraint = "text must be a string"
	ConstraintEmpty        Constraint = "text must contain non-whitespace characters"
	ConstraintTooLong      Constraint = "text exceeds 10000 characters"
	ConstraintTooManyLines Constraint = "text exceeds 1000 lines"
)

// InputError reports a rejected review text.
type InputError struct {
	Constraint Constraint
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Constraint)
}

// Is lets errors.Is(err, ErrInvalidInput) match any InputError.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}
