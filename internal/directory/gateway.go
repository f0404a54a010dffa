package directory

import (
	"context"
)

// Employee is the directory view of a person.
type Employee struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id,omitempty"`
	PositionName string `json:"position_name,omitempty"`
	ManagerID    string `json:"manager_id,omitempty"`
	Active       bool   `json:"active"`
}

// Department is the directory view of an organizational unit.
type Department struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	HeadID string `json:"head_id,omitempty"`
	Active bool   `json:"active"`
}

// Gateway resolves organizational identifiers to display data. It is a
// read-only external collaborator; the engine never writes through it.
type Gateway interface {
	// GetEmployee returns the employee with the given id, or apperr.ErrNotFound.
	GetEmployee(ctx context.Context, id string) (*Employee, error)

	// GetDepartment returns the department with the given id, or apperr.ErrNotFound.
	GetDepartment(ctx context.Context, id string) (*Department, error)

	// ResolveManagerChain returns the requester's management chain, nearest
	// manager first. An employee with no manager on record yields an empty
	// chain, not an error.
	ResolveManagerChain(ctx context.Context, employeeID string) ([]*Employee, error)
}
