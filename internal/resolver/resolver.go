package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/approval-flow/internal/directory"
	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/template"
	"go.uber.org/zap"
)

// ResolvedStep is one step of an approval line with its assignee rule
// resolved to a concrete person.
type ResolvedStep struct {
	StepOrder      int                 `json:"step_order"`
	StepType       string              `json:"step_type"`
	ApproverID     string              `json:"approver_id"`
	ApproverName   string              `json:"approver_name"`
	DepartmentName string              `json:"department_name,omitempty"`
	PositionName   string              `json:"position_name,omitempty"`
	Rule           entity.AssigneeRule `json:"rule"`
	IsRequired     bool                `json:"is_required"`
}

// Source selects the step definitions to resolve: a stored template version
// or an inline custom step list. Exactly one must be set.
type Source struct {
	TemplateVersionID int64                   `json:"template_version_id,omitempty"`
	CustomSteps       []entity.StepDefinition `json:"custom_steps,omitempty"`
}

// VersionLoader loads stored template versions
type VersionLoader interface {
	GetVersion(ctx context.Context, id int64) (*entity.TemplateVersion, error)
}

// Resolver materializes approval line templates into concrete step
// assignments for a specific requester. Resolution is read-only and
// idempotent: the same inputs yield the same output unless the requester's
// org position changed in between.
type Resolver struct {
	versions VersionLoader
	dir      directory.Gateway
	retry    *directory.RetryStrategy
	logger   *zap.Logger
}

// New creates a new resolver
func New(versions VersionLoader, dir directory.Gateway, retry *directory.RetryStrategy, logger *zap.Logger) *Resolver {
	if retry == nil {
		retry = directory.NewRetryStrategy()
	}
	return &Resolver{
		versions: versions,
		dir:      dir,
		retry:    retry,
		logger:   logger,
	}
}

// PreviewApprovalLine resolves every step of the source for the requester.
// The result is ordered by stepOrder ascending. Any step whose rule yields no
// valid person fails the whole preview with apperr.ErrUnresolvableAssignee;
// steps are never silently skipped.
func (r *Resolver) PreviewApprovalLine(ctx context.Context, source Source, requesterID string) ([]ResolvedStep, error) {
	if requesterID == "" {
		return nil, apperr.Validationf("requester id is required")
	}

	steps, err := r.loadSteps(ctx, source)
	if err != nil {
		return nil, err
	}

	resolved := make([]ResolvedStep, 0, len(steps))
	for _, def := range steps {
		assignee, err := r.resolveRule(ctx, def.Rule, requesterID)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", def.StepOrder, err)
		}

		resolved = append(resolved, ResolvedStep{
			StepOrder:      def.StepOrder,
			StepType:       def.StepType,
			ApproverID:     assignee.ID,
			ApproverName:   assignee.Name,
			DepartmentName: assignee.departmentName,
			PositionName:   assignee.PositionName,
			Rule:           def.Rule,
			IsRequired:     def.IsRequired,
		})
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].StepOrder < resolved[j].StepOrder
	})
	return resolved, nil
}

func (r *Resolver) loadSteps(ctx context.Context, source Source) ([]entity.StepDefinition, error) {
	switch {
	case source.TemplateVersionID != 0 && len(source.CustomSteps) > 0:
		return nil, apperr.Validationf("template version and custom steps are mutually exclusive")
	case source.TemplateVersionID != 0:
		version, err := r.versions.GetVersion(ctx, source.TemplateVersionID)
		if err != nil {
			return nil, err
		}
		return version.Steps, nil
	case len(source.CustomSteps) > 0:
		if err := template.ValidateSteps(source.CustomSteps); err != nil {
			return nil, err
		}
		return source.CustomSteps, nil
	default:
		return nil, apperr.Validationf("template version or custom steps required")
	}
}

// assignee carries the resolved employee plus the department display name
// used for snapshot denormalization.
type assignee struct {
	*directory.Employee
	departmentName string
}

func (r *Resolver) resolveRule(ctx context.Context, rule entity.AssigneeRule, requesterID string) (*assignee, error) {
	switch rule.Kind {
	case entity.RuleFixedEmployee:
		return r.resolveFixedEmployee(ctx, rule.EmployeeID)
	case entity.RuleFixedDepartmentHead:
		return r.resolveDepartmentHead(ctx, rule.DepartmentID)
	case entity.RuleRequesterManager:
		return r.resolveRequesterManager(ctx, requesterID)
	case entity.RuleRequesterDepartmentHead:
		return r.resolveRequesterDepartmentHead(ctx, requesterID)
	default:
		return nil, apperr.Validationf("unknown assignee rule kind %q", rule.Kind)
	}
}

func (r *Resolver) resolveFixedEmployee(ctx context.Context, employeeID string) (*assignee, error) {
	emp, err := r.getEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, apperr.Unresolvablef("employee %s is inactive", employeeID)
	}
	return r.withDepartmentName(ctx, emp), nil
}

func (r *Resolver) resolveDepartmentHead(ctx context.Context, departmentID string) (*assignee, error) {
	dept, err := r.getDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if !dept.Active {
		return nil, apperr.Unresolvablef("department %s is inactive", departmentID)
	}
	if dept.HeadID == "" {
		return nil, apperr.Unresolvablef("department %s has no head on record", departmentID)
	}

	head, err := r.getEmployee(ctx, dept.HeadID)
	if err != nil {
		return nil, err
	}
	if !head.Active {
		return nil, apperr.Unresolvablef("department head %s is inactive", dept.HeadID)
	}
	return &assignee{Employee: head, departmentName: dept.Name}, nil
}

func (r *Resolver) resolveRequesterManager(ctx context.Context, requesterID string) (*assignee, error) {
	var chain []*directory.Employee
	err := r.retry.Do(ctx, func() error {
		var err error
		chain, err = r.dir.ResolveManagerChain(ctx, requesterID)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unresolvablef("requester %s not found in directory", requesterID)
		}
		return nil, err
	}

	for _, manager := range chain {
		if manager.Active {
			return r.withDepartmentName(ctx, manager), nil
		}
	}
	return nil, apperr.Unresolvablef("requester %s has no active manager on record", requesterID)
}

func (r *Resolver) resolveRequesterDepartmentHead(ctx context.Context, requesterID string) (*assignee, error) {
	requester, err := r.getEmployee(ctx, requesterID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unresolvablef("requester %s not found in directory", requesterID)
		}
		return nil, err
	}
	if requester.DepartmentID == "" {
		return nil, apperr.Unresolvablef("requester %s has no department on record", requesterID)
	}
	return r.resolveDepartmentHead(ctx, requester.DepartmentID)
}

func (r *Resolver) getEmployee(ctx context.Context, id string) (*directory.Employee, error) {
	var emp *directory.Employee
	err := r.retry.Do(ctx, func() error {
		var err error
		emp, err = r.dir.GetEmployee(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unresolvablef("employee %s not found", id)
		}
		return nil, err
	}
	return emp, nil
}

func (r *Resolver) getDepartment(ctx context.Context, id string) (*directory.Department, error) {
	var dept *directory.Department
	err := r.retry.Do(ctx, func() error {
		var err error
		dept, err = r.dir.GetDepartment(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unresolvablef("department %s not found", id)
		}
		return nil, err
	}
	return dept, nil
}

// withDepartmentName best-effort decorates an assignee with their department
// display name. Lookup failures here never fail resolution.
func (r *Resolver) withDepartmentName(ctx context.Context, emp *directory.Employee) *assignee {
	a := &assignee{Employee: emp}
	if emp.DepartmentID == "" {
		return a
	}
	dept, err := r.dir.GetDepartment(ctx, emp.DepartmentID)
	if err != nil {
		r.logger.Debug("Failed to load department name",
			zap.String("department_id", emp.DepartmentID),
			zap.Error(err))
		return a
	}
	a.departmentName = dept.Name
	return a
}
