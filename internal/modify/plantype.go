package modify

import "fmt"

// PlanType identifies the mutation a plan performs. The set is closed.
type PlanType int

const (
	InsertPlan PlanType = iota
	DeleteItemPlan
	DeleteComplexChildPlan
	UpdatePlan

	numPlanTypes
)

// PlanTypes lists every plan type in declaration order.
var PlanTypes = [numPlanTypes]PlanType{InsertPlan, DeleteItemPlan, DeleteComplexChildPlan, UpdatePlan}

// String returns the wire name of the plan type.
func (t PlanType) String() string {
	switch t {
	case InsertPlan:
		return "INSERT_PLAN"
	case DeleteItemPlan:
		return "TYPE_DELETE_ITEM"
	case DeleteComplexChildPlan:
		return "TYPE_DELETE_COMPLEX_CHILD"
	case UpdatePlan:
		return "TYPE_UPDATE_PLAN"
	default:
		return fmt.Sprintf("PlanType(%d)", int(t))
	}
}

// Valid reports whether t is one of the declared plan types.
func (t PlanType) Valid() bool {
	return t >= 0 && t < numPlanTypes
}

// ParsePlanType converts a wire name back to a PlanType.
func ParsePlanType(s string) (PlanType, error) {
	for _, t := range PlanTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown plan type %q", s)
}
