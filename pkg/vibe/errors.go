package vibe

import (
	"errors"
	"fmt"
)

// ErrBranchOperation is wrapped by every StepError
var ErrBranchOperation = errors.New("branch operation failed")

// StepError names the workflow step whose git command failed, with the
// command output.
type StepError struct {
	Step   string
	Output string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("Error %s: %s", e.Step, e.Output)
}

// Unwrap allows errors.Is(err, ErrBranchOperation)
func (e *StepError) Unwrap() error {
	return ErrBranchOperation
}

func stepError(step string, err error) *StepError {
	return &StepError{Step: step, Output: outputOf(err)}
}
