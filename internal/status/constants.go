// internal/status/constants.go
package status

// State is the lifecycle position of one remote operation.
// Transitions only move forward: pending -> in_flight -> completed|failed.
type State uint8

// ---- TASK STATES ----

// StatePending is a task created but not yet issued to a shim.
const StatePending State = 0

// StateInFlight is a task whose request has been issued.
const StateInFlight State = 1

// StateCompleted is a task that finished without error.
const StateCompleted State = 2

// StateFailed is a task that finished with an error or timed out.
const StateFailed State = 3

// ---- REPORT-ONLY STATES ----

// StateSkipped marks an item apply chose not to write
// (readbacks, null data).
const StateSkipped State = 4

// StateMismatch marks a readback outside tolerance of its setpoint.
const StateMismatch State = 5

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateMismatch:
		return "mismatch"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped || s == StateMismatch
}
