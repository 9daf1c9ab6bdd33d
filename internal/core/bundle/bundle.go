// Package bundle holds the poisoning state machine used while processing the
// ordered operations of one command.
//
// A bundle starts Clean. The first operation that fails validation moves it
// to Poisoned, and every later operation is rejected without being validated.
// The state is a value passed in and returned from Step, never shared.
package bundle

import "github.com/artpar/charges/internal/core/validation"

// =============================================================================
// State
// =============================================================================

// State is either Clean or Poisoned by a specific operation.
type State struct {
	triggeredBy string
	poisoned    bool
}

// Clean returns the initial state of a bundle.
func Clean() State {
	return State{}
}

// Poisoned returns the state after operationID failed validation.
func Poisoned(operationID string) State {
	return State{triggeredBy: operationID, poisoned: true}
}

func (s State) IsPoisoned() bool {
	return s.poisoned
}

// TriggeredBy is the ID of the operation that poisoned the bundle, or empty
// while the bundle is clean.
func (s State) TriggeredBy() string {
	return s.triggeredBy
}

// =============================================================================
// Transition
// =============================================================================

// Stage is one validation stage. Stages run in order and later stages are
// skipped once one fails.
type Stage func() validation.Result

// Step validates one operation and returns the next state along with the
// result to report for the operation. In a poisoned bundle the stages are not
// run and the result carries the previous-operation rule instead.
func Step(s State, operationID string, stages ...Stage) (State, validation.Result) {
	if s.poisoned {
		return s, validation.PreviousOperationFailed(s.triggeredBy, operationID)
	}

	for _, stage := range stages {
		result := stage()
		if !result.IsValid() {
			return Poisoned(operationID), result
		}
	}
	return s, validation.Success()
}
