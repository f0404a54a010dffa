package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/lark"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	"go.uber.org/zap"
)

// maxChainDepth bounds manager-chain walks against directory cycles.
const maxChainDepth = 10

// LarkGateway resolves directory data through the Lark contact API.
type LarkGateway struct {
	contactAPI *lark.ContactAPI
	logger     *zap.Logger
}

// NewLarkGateway creates a directory gateway backed by Lark.
func NewLarkGateway(client *lark.Client, logger *zap.Logger) *LarkGateway {
	return &LarkGateway{
		contactAPI: lark.NewContactAPI(client, logger),
		logger:     logger,
	}
}

func (g *LarkGateway) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	user, err := g.contactAPI.GetUser(ctx, id)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, apperr.NotFoundf("employee %s", id)
		}
		return nil, err
	}
	return mapUser(id, user), nil
}

func (g *LarkGateway) GetDepartment(ctx context.Context, id string) (*Department, error) {
	dept, err := g.contactAPI.GetDepartment(ctx, id)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, apperr.NotFoundf("department %s", id)
		}
		return nil, err
	}

	d := &Department{ID: id, Active: true}
	if dept.Name != nil {
		d.Name = *dept.Name
	}
	if dept.LeaderUserId != nil {
		d.HeadID = *dept.LeaderUserId
	}
	if dept.Status != nil && dept.Status.IsDeleted != nil && *dept.Status.IsDeleted {
		d.Active = false
	}
	return d, nil
}

func (g *LarkGateway) ResolveManagerChain(ctx context.Context, employeeID string) ([]*Employee, error) {
	start, err := g.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	var chain []*Employee
	seen := map[string]bool{start.ID: true}
	current := start
	for current.ManagerID != "" && len(chain) < maxChainDepth {
		if seen[current.ManagerID] {
			g.logger.Warn("Manager chain cycle detected",
				zap.String("employee_id", employeeID),
				zap.String("manager_id", current.ManagerID))
			break
		}
		manager, err := g.GetEmployee(ctx, current.ManagerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve manager %s: %w", current.ManagerID, err)
		}
		seen[manager.ID] = true
		chain = append(chain, manager)
		current = manager
	}
	return chain, nil
}

func mapUser(id string, user *larkcontact.User) *Employee {
	e := &Employee{ID: id, Active: true}
	if user.OpenId != nil {
		e.ID = *user.OpenId
	}
	if user.Name != nil {
		e.Name = *user.Name
	}
	if user.JobTitle != nil {
		e.PositionName = *user.JobTitle
	}
	if user.LeaderUserId != nil {
		e.ManagerID = *user.LeaderUserId
	}
	if len(user.DepartmentIds) > 0 {
		e.DepartmentID = user.DepartmentIds[0]
	}
	if user.Status != nil {
		if user.Status.IsResigned != nil && *user.Status.IsResigned {
			e.Active = false
		}
		if user.Status.IsFrozen != nil && *user.Status.IsFrozen {
			e.Active = false
		}
	}
	return e
}

// isNotFoundErr matches the Lark API's not-found failure codes surfaced by
// the contact wrapper.
func isNotFoundErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "code=99992360") || strings.Contains(msg, "code=40003")
}
