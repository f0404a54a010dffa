package entity

// Status constants for Document
const (
	DocumentStatusDraft      = "DRAFT"
	DocumentStatusInProgress = "IN_PROGRESS"
	DocumentStatusApproved   = "APPROVED"
	DocumentStatusRejected   = "REJECTED"
	DocumentStatusCancelled  = "CANCELLED"
)

// Status constants for StepSnapshot
const (
	StepStatusPending   = "PENDING"
	StepStatusApproved  = "APPROVED"
	StepStatusRejected  = "REJECTED"
	StepStatusCancelled = "CANCELLED"
)

// Step type constants
const (
	StepTypeAgreement      = "AGREEMENT"
	StepTypeApproval       = "APPROVAL"
	StepTypeImplementation = "IMPLEMENTATION"
	StepTypeReference      = "REFERENCE"
)

// ValidStepType reports whether t is one of the defined step types.
func ValidStepType(t string) bool {
	switch t {
	case StepTypeAgreement, StepTypeApproval, StepTypeImplementation, StepTypeReference:
		return true
	default:
		return false
	}
}

// GatingStepType reports whether steps of type t participate in sequential
// gating. REFERENCE steps are informational and never gate progression.
func GatingStepType(t string) bool {
	return t != StepTypeReference
}
