package agent

import (
	"errors"
	"fmt"
)

// ErrAbortEvaluation is raised when the abort flag is observed at a
// suspension point. The evaluate middleware swallows it and returns the last
// known state; every other layer propagates it.
var ErrAbortEvaluation = errors.New("evaluation aborted")

// InvalidInputError reports a guardrail rejection. It propagates to the
// caller of Evaluate.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason == "" {
		return "input rejected by guardrail"
	}
	return fmt.Sprintf("input rejected by guardrail: %s", e.Reason)
}

// IsInvalidInput reports whether err is a guardrail rejection.
func IsInvalidInput(err error) bool {
	var iie *InvalidInputError
	return errors.As(err, &iie)
}
