package agent

import "sync/atomic"

// Abort is a single-shot cancellation flag polled at suspension points: SSE
// reads, tool-future awaits, turn boundaries. Once set it stays set for the
// life of the evaluation.
type Abort struct {
	flag atomic.Bool
}

// NewAbort returns an unset flag.
func NewAbort() *Abort { return &Abort{} }

// Set trips the flag.
func (a *Abort) Set() {
	if a != nil {
		a.flag.Store(true)
	}
}

// IsSet reports the flag without raising.
func (a *Abort) IsSet() bool {
	return a != nil && a.flag.Load()
}

// Check returns ErrAbortEvaluation when the flag is set.
func (a *Abort) Check() error {
	if a.IsSet() {
		return ErrAbortEvaluation
	}
	return nil
}
