package workflow

// State represents a lifecycle state of a document or a step snapshot.
type State string

const (
	StateDraft      State = "DRAFT"
	StateInProgress State = "IN_PROGRESS"
	StatePending    State = "PENDING"
	StateApproved   State = "APPROVED"
	StateRejected   State = "REJECTED"
	StateCancelled  State = "CANCELLED"
)

var validStates = map[State]bool{
	StateDraft:      true,
	StateInProgress: true,
	StatePending:    true,
	StateApproved:   true,
	StateRejected:   true,
	StateCancelled:  true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
}

// IsTerminal returns true if the state permits no further transitions.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
