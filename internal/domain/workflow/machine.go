package workflow

import "fmt"

// StateMachine tracks a current state and validates trigger-driven transitions.
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}

// Builder assembles a transition table and builds machine instances from it.
type Builder struct {
	transitions map[State]map[Trigger]State
}

// NewBuilder creates a new state machine builder.
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger]State)}
}

// Permit allows trigger to move the machine from one state to another.
func (b *Builder) Permit(from State, trigger Trigger, to State) *Builder {
	if !from.IsValid() {
		panic(fmt.Sprintf("invalid source state: %s", from))
	}
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}

	row, exists := b.transitions[from]
	if !exists {
		row = make(map[Trigger]State)
		b.transitions[from] = row
	}
	row[trigger] = to
	return b
}

// Build creates a new state machine instance with the given initial state.
// The instance holds its own copy of the transition table.
func (b *Builder) Build(initial State) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	table := make(map[State]map[Trigger]State, len(b.transitions))
	for from, row := range b.transitions {
		rowCopy := make(map[Trigger]State, len(row))
		for trigger, to := range row {
			rowCopy[trigger] = to
		}
		table[from] = rowCopy
	}

	return &stateMachine{current: initial, transitions: table}
}

type stateMachine struct {
	current     State
	transitions map[State]map[Trigger]State
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	row, exists := m.transitions[m.current]
	if !exists {
		return false
	}
	_, exists = row[trigger]
	return exists
}

func (m *stateMachine) Fire(trigger Trigger) error {
	row, exists := m.transitions[m.current]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	to, exists := row[trigger]
	if !exists {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	m.current = to
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	row, exists := m.transitions[m.current]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(row))
	for trigger := range row {
		triggers = append(triggers, trigger)
	}
	return triggers
}
