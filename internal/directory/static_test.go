package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
)

func seededGateway() *StaticGateway {
	g := NewStaticGateway()
	g.AddDepartment(&Department{ID: "dept-eng", Name: "Engineering", HeadID: "emp-head", Active: true})
	g.AddEmployee(&Employee{ID: "emp-head", Name: "Head", DepartmentID: "dept-eng", Active: true})
	g.AddEmployee(&Employee{ID: "emp-mgr", Name: "Manager", DepartmentID: "dept-eng", ManagerID: "emp-head", Active: true})
	g.AddEmployee(&Employee{ID: "emp-ic", Name: "Engineer", DepartmentID: "dept-eng", ManagerID: "emp-mgr", Active: true})
	return g
}

func TestStaticGateway_GetEmployee(t *testing.T) {
	g := seededGateway()

	emp, err := g.GetEmployee(context.Background(), "emp-ic")
	require.NoError(t, err)
	assert.Equal(t, "Engineer", emp.Name)

	_, err = g.GetEmployee(context.Background(), "ghost")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStaticGateway_GetEmployeeReturnsCopy(t *testing.T) {
	g := seededGateway()

	emp, err := g.GetEmployee(context.Background(), "emp-ic")
	require.NoError(t, err)
	emp.Name = "mutated"

	again, err := g.GetEmployee(context.Background(), "emp-ic")
	require.NoError(t, err)
	assert.Equal(t, "Engineer", again.Name)
}

func TestStaticGateway_GetDepartment(t *testing.T) {
	g := seededGateway()

	dept, err := g.GetDepartment(context.Background(), "dept-eng")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", dept.Name)

	_, err = g.GetDepartment(context.Background(), "dept-ghost")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStaticGateway_ResolveManagerChain(t *testing.T) {
	g := seededGateway()

	chain, err := g.ResolveManagerChain(context.Background(), "emp-ic")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "emp-mgr", chain[0].ID)
	assert.Equal(t, "emp-head", chain[1].ID)
}

func TestStaticGateway_ResolveManagerChainTopHasNoManager(t *testing.T) {
	g := seededGateway()

	chain, err := g.ResolveManagerChain(context.Background(), "emp-head")
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestStaticGateway_ResolveManagerChainUnknownEmployee(t *testing.T) {
	g := seededGateway()

	_, err := g.ResolveManagerChain(context.Background(), "ghost")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStaticGateway_ResolveManagerChainBreaksCycle(t *testing.T) {
	g := NewStaticGateway()
	g.AddEmployee(&Employee{ID: "a", ManagerID: "b", Active: true})
	g.AddEmployee(&Employee{ID: "b", ManagerID: "a", Active: true})

	chain, err := g.ResolveManagerChain(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "b", chain[0].ID)
}

func TestStaticGateway_ResolveManagerChainDanglingManager(t *testing.T) {
	g := NewStaticGateway()
	g.AddEmployee(&Employee{ID: "a", ManagerID: "gone", Active: true})

	chain, err := g.ResolveManagerChain(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, chain)
}
