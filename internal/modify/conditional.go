package modify

import (
	"fmt"

	"go.uber.org/zap"
)

// Condition is a predicate over the live request parameters.
type Condition interface {
	Evaluate(p Params) bool
	String() string
}

// ParamPresent holds when the parameter exists, is non-empty and its first
// element is non-nil.
type ParamPresent struct {
	Param string
}

// Evaluate implements Condition.
func (c ParamPresent) Evaluate(p Params) bool {
	return p.Present(c.Param)
}

func (c ParamPresent) String() string {
	return "present(" + c.Param + ")"
}

// ConditionalStep runs its step only when every condition holds.
// A false condition skips the step without error.
type ConditionalStep struct {
	step       Step
	conditions []Condition
}

// NewConditionalStep wraps step. A nil condition list is an invalid
// argument; an empty one is vacuously true.
func NewConditionalStep(step Step, conditions []Condition) (*ConditionalStep, error) {
	if step == nil {
		return nil, fmt.Errorf("%w: conditional step needs a step", ErrInvalidArgument)
	}
	if conditions == nil {
		return nil, fmt.Errorf("%w: conditional step needs a condition list", ErrInvalidArgument)
	}
	for i, c := range conditions {
		if c == nil {
			return nil, fmt.Errorf("%w: condition %d is nil", ErrInvalidArgument, i)
		}
	}
	return &ConditionalStep{step: step, conditions: append([]Condition(nil), conditions...)}, nil
}

// Execute evaluates every condition once, then delegates or skips.
func (s *ConditionalStep) Execute(ec ExecutionContext) error {
	params := ec.Params()
	ok := true
	for _, c := range s.conditions {
		if !c.Evaluate(params) {
			ok = false
		}
	}
	if ok {
		return s.step.Execute(ec)
	}

	inner := s.step.Describe()
	ec.Logger().Debug("step skipped",
		zap.String("resource", inner.Resource),
		zap.Strings("conditions", s.conditionStrings()))
	ec.Record(StepOutcome{Resource: inner.Resource, Mode: inner.Discriminator, Skipped: true})
	return nil
}

// Step returns the wrapped step.
func (s *ConditionalStep) Step() Step { return s.step }

// Describe returns the static description of the step.
func (s *ConditionalStep) Describe() StepDescription {
	inner := s.step.Describe()
	return StepDescription{
		Kind:       "conditional",
		Resource:   inner.Resource,
		Conditions: s.conditionStrings(),
		Inner:      &inner,
	}
}

func (s *ConditionalStep) conditionStrings() []string {
	out := make([]string, len(s.conditions))
	for i, c := range s.conditions {
		out[i] = c.String()
	}
	return out
}
