package directory

import (
	"context"
	"sync"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
)

// StaticGateway serves directory data from memory. It backs local mode and
// tests where no upstream directory is available.
type StaticGateway struct {
	mu          sync.RWMutex
	employees   map[string]*Employee
	departments map[string]*Department
}

// NewStaticGateway creates an empty in-memory gateway.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{
		employees:   make(map[string]*Employee),
		departments: make(map[string]*Department),
	}
}

// AddEmployee registers or replaces an employee record.
func (g *StaticGateway) AddEmployee(e *Employee) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.employees[e.ID] = e
}

// AddDepartment registers or replaces a department record.
func (g *StaticGateway) AddDepartment(d *Department) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.departments[d.ID] = d
}

func (g *StaticGateway) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.employees[id]
	if !ok {
		return nil, apperr.NotFoundf("employee %s", id)
	}
	copy := *e
	return &copy, nil
}

func (g *StaticGateway) GetDepartment(ctx context.Context, id string) (*Department, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	d, ok := g.departments[id]
	if !ok {
		return nil, apperr.NotFoundf("department %s", id)
	}
	copy := *d
	return &copy, nil
}

func (g *StaticGateway) ResolveManagerChain(ctx context.Context, employeeID string) ([]*Employee, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.employees[employeeID]
	if !ok {
		return nil, apperr.NotFoundf("employee %s", employeeID)
	}

	var chain []*Employee
	seen := map[string]bool{start.ID: true}
	current := start
	for current.ManagerID != "" && !seen[current.ManagerID] {
		manager, ok := g.employees[current.ManagerID]
		if !ok {
			break
		}
		seen[manager.ID] = true
		copy := *manager
		chain = append(chain, &copy)
		current = manager
	}
	return chain, nil
}
