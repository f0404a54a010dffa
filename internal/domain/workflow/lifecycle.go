package workflow

// Document lifecycle:
//
//	DRAFT --SUBMIT--> IN_PROGRESS --APPROVE--> APPROVED
//	                              --REJECT---> REJECTED
//	                              --CANCEL---> CANCELLED
//
// No transition re-enters DRAFT or IN_PROGRESS once left.
func documentBuilder() *Builder {
	return NewBuilder().
		Permit(StateDraft, TriggerSubmit, StateInProgress).
		Permit(StateInProgress, TriggerApprove, StateApproved).
		Permit(StateInProgress, TriggerReject, StateRejected).
		Permit(StateInProgress, TriggerCancel, StateCancelled)
}

// Step snapshot lifecycle: PENDING is the only non-terminal state.
func stepBuilder() *Builder {
	return NewBuilder().
		Permit(StatePending, TriggerApprove, StateApproved).
		Permit(StatePending, TriggerReject, StateRejected).
		Permit(StatePending, TriggerCancel, StateCancelled)
}

// NewDocumentMachine builds a document lifecycle machine positioned at the
// given status.
func NewDocumentMachine(status string) StateMachine {
	return documentBuilder().Build(State(status))
}

// NewStepMachine builds a step snapshot lifecycle machine positioned at the
// given status.
func NewStepMachine(status string) StateMachine {
	return stepBuilder().Build(State(status))
}
