package modify

import (
	"fmt"
	"iter"
	"maps"

	"github.com/roach88/modplan/internal/ir"
)

// Plan is a compiled, immutable sequence of steps implementing one mutation
// for one field set.
//
// Steps are appended only by the builder. Insertion order is execution
// order. The optional validation step runs before every mutation step.
type Plan struct {
	planType   PlanType
	mappingID  string
	shape      ir.Shape
	validation Step
	steps      []Step
	// binary maps each binary field to the request parameter that must
	// carry its full value on every mutation.
	binary map[string]string
}

func newPlan(t PlanType, mappingID string, shape ir.Shape) *Plan {
	return &Plan{planType: t, mappingID: mappingID, shape: shape, binary: map[string]string{}}
}

func (p *Plan) addStep(s Step) {
	p.steps = append(p.steps, s)
}

// Type returns the plan type.
func (p *Plan) Type() PlanType { return p.planType }

// MappingID returns the display mapping the plan was compiled for.
func (p *Plan) MappingID() string { return p.mappingID }

// Shape returns the field set shape the plan was compiled for.
func (p *Plan) Shape() ir.Shape { return p.shape }

// Validation returns the revision-validation step, or nil for plans
// without one.
func (p *Plan) Validation() Step { return p.validation }

// Steps returns a copy of the mutation steps in execution order.
func (p *Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// BinaryFields returns a copy of the binary-field registry.
func (p *Plan) BinaryFields() map[string]string {
	return maps.Clone(p.binary)
}

// Resources returns the names of every resource the plan dispatches, in
// execution order.
func (p *Plan) Resources() []string {
	var out []string
	if p.validation != nil {
		out = append(out, p.validation.Describe().Resource)
	}
	for _, s := range p.steps {
		out = append(out, s.Describe().Resource)
	}
	return out
}

// Execute runs the validation step, then every step in order. The first
// failure stops the plan and is returned unchanged.
func (p *Plan) Execute(ec ExecutionContext) error {
	if p.validation != nil {
		if err := p.validation.Execute(ec); err != nil {
			return err
		}
	}
	for _, s := range p.steps {
		if err := s.Execute(ec); err != nil {
			return err
		}
	}
	return nil
}

// PlanSet holds at most one plan per plan type for one display mapping.
// It is a fixed table indexed by PlanType.
type PlanSet struct {
	mappingID string
	plans     [numPlanTypes]*Plan
}

// NewPlanSet creates an empty plan set.
func NewPlanSet(mappingID string) *PlanSet {
	return &PlanSet{mappingID: mappingID}
}

// MappingID returns the mapping the set belongs to.
func (s *PlanSet) MappingID() string { return s.mappingID }

// AddPlan registers a plan under its type. A nil plan or an already used
// type fails and leaves the set unchanged.
func (s *PlanSet) AddPlan(p *Plan) error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidArgument)
	}
	if !p.planType.Valid() {
		return fmt.Errorf("%w: unknown plan type %v", ErrInvalidArgument, p.planType)
	}
	if s.plans[p.planType] != nil {
		return fmt.Errorf("%w: %s already registered for mapping %s", ErrDuplicatePlan, p.planType, s.mappingID)
	}
	s.plans[p.planType] = p
	return nil
}

// GetPlan returns the plan registered for t. An absent plan means the
// operation is not supported for this shape.
func (s *PlanSet) GetPlan(t PlanType) (*Plan, bool) {
	if !t.Valid() {
		return nil, false
	}
	p := s.plans[t]
	return p, p != nil
}

// AllPlans yields every registered plan. Iteration order is not part of
// the contract.
func (s *PlanSet) AllPlans() iter.Seq[*Plan] {
	return func(yield func(*Plan) bool) {
		for _, p := range s.plans {
			if p == nil {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Len returns the number of registered plans.
func (s *PlanSet) Len() int {
	n := 0
	for _, p := range s.plans {
		if p != nil {
			n++
		}
	}
	return n
}
