package template

import (
	"sort"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
)

// ValidateSteps checks that a step list forms a contiguous 1..N ordering with
// no duplicate stepOrder and that every step carries a known type and a
// well-formed assignee rule.
func ValidateSteps(steps []entity.StepDefinition) error {
	if len(steps) == 0 {
		return apperr.Validationf("at least one step is required")
	}

	orders := make([]int, len(steps))
	for i, step := range steps {
		if !entity.ValidStepType(step.StepType) {
			return apperr.Validationf("step %d has unknown type %q", step.StepOrder, step.StepType)
		}
		if err := step.Rule.Validate(); err != nil {
			return apperr.Validationf("step %d: %v", step.StepOrder, err)
		}
		orders[i] = step.StepOrder
	}

	sort.Ints(orders)
	for i, order := range orders {
		if order != i+1 {
			if i > 0 && order == orders[i-1] {
				return apperr.Validationf("duplicate step order %d", order)
			}
			return apperr.Validationf("step orders must be contiguous starting at 1, got %d at position %d", order, i+1)
		}
	}
	return nil
}
