package credsync

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal failure. Each kind has its own exit code so
// callers can tell "nothing happened" apart from "applied but the service
// did not come back".
type Kind string

const (
	KindPrecondition Kind = "precondition"
	KindFetch        Kind = "fetch"
	KindSanitize     Kind = "sanitize"
	KindApply        Kind = "apply"
	KindRestart      Kind = "restart"
)

// Step names a workflow state.
type Step string

const (
	StepPreflight    Step = "preflight"
	StepCapabilities Step = "capabilities"
	StepFetch        Step = "fetch"
	StepSanitize     Step = "sanitize"
	StepDiff         Step = "diff"
	StepApply        Step = "apply"
	StepRestart      Step = "restart"
)

// StepError is the terminal FAILED(kind) state.
type StepError struct {
	Kind  Kind
	Step  Step
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s error in %s step: %v", e.Kind, e.Step, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// ExitCode is 10-14 by kind.
func (e *StepError) ExitCode() int {
	switch e.Kind {
	case KindPrecondition:
		return 10
	case KindFetch:
		return 11
	case KindSanitize:
		return 12
	case KindApply:
		return 13
	case KindRestart:
		return 14
	default:
		return 1
	}
}

func stepError(kind Kind, step Step, cause error) *StepError {
	return &StepError{Kind: kind, Step: step, Cause: cause}
}

// KindOf returns the kind of a workflow failure, or "" for other errors.
func KindOf(err error) Kind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// WarningKind classifies non-fatal findings.
type WarningKind string

const KindCompatibility WarningKind = "compatibility"

// Warning is logged and reported, and never stops a run.
type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	Check   string      `json:"check" yaml:"check"`
	Message string      `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s warning (%s): %s", w.Kind, w.Check, w.Message)
}
