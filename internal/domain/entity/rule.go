package entity

import "fmt"

// RuleKind identifies how a step's assignee is determined at submission time.
type RuleKind string

const (
	// RuleFixedEmployee assigns a specific employee configured on the step.
	RuleFixedEmployee RuleKind = "FIXED_EMPLOYEE"

	// RuleFixedDepartmentHead assigns the head of a specific department.
	RuleFixedDepartmentHead RuleKind = "FIXED_DEPARTMENT_HEAD"

	// RuleRequesterManager assigns the requester's direct manager.
	RuleRequesterManager RuleKind = "REQUESTER_MANAGER"

	// RuleRequesterDepartmentHead assigns the head of the requester's department.
	RuleRequesterDepartmentHead RuleKind = "REQUESTER_DEPARTMENT_HEAD"
)

// String returns the string representation of the rule kind.
func (k RuleKind) String() string {
	return string(k)
}

// IsValid reports whether the rule kind is one of the defined constants.
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleFixedEmployee, RuleFixedDepartmentHead, RuleRequesterManager, RuleRequesterDepartmentHead:
		return true
	default:
		return false
	}
}

// AssigneeRule is a closed assignment policy resolved to a concrete person at
// submission time. Fixed rules carry the target employee or department id;
// relative rules are resolved against the requester's org chain.
type AssigneeRule struct {
	Kind         RuleKind `json:"kind"`
	EmployeeID   string   `json:"employee_id,omitempty"`
	DepartmentID string   `json:"department_id,omitempty"`
}

// Validate checks that the rule kind is known and that fixed rules carry
// their target id.
func (r AssigneeRule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("unknown assignee rule kind %q", r.Kind)
	}
	switch r.Kind {
	case RuleFixedEmployee:
		if r.EmployeeID == "" {
			return fmt.Errorf("rule %s requires employee_id", r.Kind)
		}
	case RuleFixedDepartmentHead:
		if r.DepartmentID == "" {
			return fmt.Errorf("rule %s requires department_id", r.Kind)
		}
	}
	return nil
}
