package harvest

import "fmt"

// State is a step of one harvest cycle.
type State string

const (
	StateStart      State = "start"
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StateRetryWait  State = "retry_wait"
	StateEnriching  State = "enriching"
	StateFiltering  State = "filtering"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var validTransitions = map[State][]State{
	StateStart: {StateFetching},
	StateFetching: {
		StateExtracting, // page ready
		StateRetryWait,  // transient failure, attempts left
		StateFailed,     // attempts exhausted or fatal
	},
	StateExtracting: {
		StateEnriching,
		StateRetryWait, // content region missing
		StateFailed,
	},
	StateRetryWait:  {StateFetching, StateFailed},
	StateEnriching:  {StateFiltering},
	StateFiltering:  {StatePersisting, StateDone},
	StatePersisting: {StateDone, StateFailed},
	StateDone:       {},
	StateFailed:     {},
}

// ValidateTransition returns an error if a cycle may not move from one state to the other.
func ValidateTransition(from, to State) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source state: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}

// Terminal reports whether s ends a cycle.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// machine tracks the current state and the path taken.
type machine struct {
	state State
	path  []State
}

func newMachine() *machine {
	return &machine{state: StateStart, path: []State{StateStart}}
}

func (m *machine) to(next State) error {
	if err := ValidateTransition(m.state, next); err != nil {
		return err
	}
	m.state = next
	m.path = append(m.path, next)
	return nil
}
