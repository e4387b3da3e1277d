package plugins

import "fmt"

// State is the lifecycle position of one plugin instance.
type State string

const (
	// StateDiscovered: manifest parsed, not yet loaded.
	StateDiscovered State = "discovered"
	// StateLoaded: entry point resolved and conformance checked.
	StateLoaded State = "loaded"
	// StateActive: at least one successful execution completed.
	StateActive State = "active"
	// StateFailed: manifest invalid, load error, or execution violation.
	StateFailed State = "failed"
	// StateDisabled: parked by explicit host action; terminal until re-enable.
	StateDisabled State = "disabled"
)

func (s State) Valid() bool {
	switch s {
	case StateDiscovered, StateLoaded, StateActive, StateFailed, StateDisabled:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// legalTransitions encodes the lifecycle. Failed is reachable from every
// live state; Disabled only from Failed by explicit host action; re-enable
// is the only way out of Disabled and lands back at Discovered.
var legalTransitions = map[State]map[State]bool{
	StateDiscovered: {StateLoaded: true, StateFailed: true},
	StateLoaded:     {StateActive: true, StateFailed: true},
	StateActive:     {StateActive: true, StateFailed: true},
	StateFailed:     {StateFailed: true, StateDisabled: true},
	StateDisabled:   {StateDiscovered: true},
}

// StateError reports an illegal transition. These are programming errors in
// the caller, not expected runtime conditions, and must surface loudly.
type StateError struct {
	PluginID string
	From     State
	To       State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin %q: illegal state transition %s -> %s", e.PluginID, e.From, e.To)
}

func (e *StateError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// transition validates a state change and returns the new state.
func transition(pluginID string, from, to State) (State, error) {
	if !from.Valid() || !to.Valid() {
		return from, &StateError{PluginID: pluginID, From: from, To: to}
	}
	if !legalTransitions[from][to] {
		return from, &StateError{PluginID: pluginID, From: from, To: to}
	}
	return to, nil
}
