package engine

import (
	"fmt"

	"github.com/roach88/modplan/internal/modify"
)

// Params is a request parameter map. Every parameter is a list; a scalar is
// a list of length one.
type Params = modify.Params

// Operation is a request-time mutation of one display mapping.
type Operation string

const (
	OpInsert      Operation = "insert"
	OpDelete      Operation = "delete"
	OpDeleteChild Operation = "deleteChild"
	OpUpdate      Operation = "update"
	// OpSave replaces a child's prior rows with the submitted ones: the
	// delete plan of the shape, if any, then the insert plan.
	OpSave Operation = "save"
)

// Operations lists every operation in a fixed order.
var Operations = []Operation{OpInsert, OpDelete, OpDeleteChild, OpUpdate, OpSave}

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Request is one mutation submitted against a display mapping.
type Request struct {
	MappingID string    `yaml:"mapping" json:"mapping"`
	Operation Operation `yaml:"operation" json:"operation"`
	Params    Params    `yaml:"params" json:"params"`
	// User is the authenticated editor. It is written to last-modified-by
	// columns and the change log.
	User string `yaml:"user" json:"user"`
}

// resolvePlans maps an operation to the plans that implement it for a plan
// set, in execution order.
func resolvePlans(op Operation, set *modify.PlanSet) ([]*modify.Plan, error) {
	var types []modify.PlanType
	switch op {
	case OpInsert:
		types = []modify.PlanType{modify.InsertPlan}
	case OpDelete:
		types = []modify.PlanType{modify.DeleteItemPlan}
	case OpDeleteChild:
		types = []modify.PlanType{modify.DeleteComplexChildPlan}
	case OpUpdate:
		types = []modify.PlanType{modify.UpdatePlan}
	case OpSave:
		var plans []*modify.Plan
		if p, ok := set.GetPlan(modify.UpdatePlan); ok {
			plans = append(plans, p)
		} else if p, ok := set.GetPlan(modify.DeleteComplexChildPlan); ok {
			plans = append(plans, p)
		}
		p, ok := set.GetPlan(modify.InsertPlan)
		if !ok {
			return nil, fmt.Errorf("%w: %s on mapping %s", ErrUnsupportedOperation, op, set.MappingID())
		}
		return append(plans, p), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	plans := make([]*modify.Plan, 0, len(types))
	for _, t := range types {
		p, ok := set.GetPlan(t)
		if !ok {
			return nil, fmt.Errorf("%w: %s on mapping %s", ErrUnsupportedOperation, op, set.MappingID())
		}
		plans = append(plans, p)
	}
	return plans, nil
}
