package event

// Type identifies the type of domain event
type Type string

const (
	TypeDocumentSubmitted Type = "document.submitted"
	TypeDocumentApproved  Type = "document.approved"
	TypeDocumentRejected  Type = "document.rejected"
	TypeDocumentCancelled Type = "document.cancelled"
	TypeStepApproved      Type = "step.approved"
	TypeStepRejected      Type = "step.rejected"
	TypeStepActivated     Type = "step.activated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDocumentSubmitted,
		TypeDocumentApproved,
		TypeDocumentRejected,
		TypeDocumentCancelled,
		TypeStepApproved,
		TypeStepRejected,
		TypeStepActivated:
		return true
	default:
		return false
	}
}
