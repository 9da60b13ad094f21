package modify

import (
	"fmt"

	"go.uber.org/zap"
)

// RevisionMode is the outcome mode recorded for revision lookups.
const RevisionMode = "query"

// RevisionStep guards a plan against lost updates: it reads the stored
// revision and fails when it differs from the presented one. A missing
// record and an absent revision parameter both count as revision 0.
type RevisionStep struct {
	resource      string
	revisionParam string
}

// NewRevisionStep creates a RevisionStep dispatching resource.
func NewRevisionStep(resource, revisionParam string) *RevisionStep {
	return &RevisionStep{resource: resource, revisionParam: revisionParam}
}

// Execute compares the stored and presented revisions.
func (s *RevisionStep) Execute(ec ExecutionContext) (err error) {
	presented, perr := ParamInt64(ec.Params().First(s.revisionParam))
	if perr != nil {
		return &ValidationError{
			Code:     CodeInvalidRevision,
			Message:  fmt.Sprintf("parameter %s: %v", s.revisionParam, perr),
			Resource: s.resource,
		}
	}

	data, err := ec.Dispatch(s.resource)
	if data != nil {
		defer func() {
			if rerr := data.Release(); rerr != nil {
				ec.Logger().Warn("release execution data failed",
					zap.String("resource", s.resource), zap.Error(rerr))
				if err == nil {
					err = fmt.Errorf("release %s: %w", s.resource, rerr)
				}
			}
		}()
	}
	if err != nil {
		return err
	}

	var current int64
	if data != nil {
		current, _ = data.Revision()
	}
	if current != presented {
		return NewRevisionMismatch(s.resource, current, presented)
	}

	ec.Record(StepOutcome{Resource: s.resource, Mode: RevisionMode})
	return nil
}

// Describe returns the static description of the step.
func (s *RevisionStep) Describe() StepDescription {
	return StepDescription{
		Kind:     "revision",
		Resource: s.resource,
		Control:  s.revisionParam,
	}
}
