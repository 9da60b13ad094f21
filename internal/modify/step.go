package modify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ExecutionContext is the live request a plan executes against.
//
// Implementations are request-scoped and used from one goroutine.
type ExecutionContext interface {
	// Context bounds backend calls made by Dispatch.
	Context() context.Context

	// Params returns the current parameter map. Steps treat it as read-only.
	Params() Params

	// SetParams replaces the parameter map seen by Dispatch.
	SetParams(Params)

	// DocumentParam names the document payload parameter, or "".
	DocumentParam() string

	// Dispatch runs the named backend resource with the current parameters.
	// Returned data, when non-nil, must be released even if err is set.
	Dispatch(resource string) (ExecutionData, error)

	// Record reports the outcome of one step.
	Record(StepOutcome)

	// Logger returns the request logger.
	Logger() *zap.Logger
}

// ExecutionData is the result of one dispatched resource. It holds request
// execution handles until released.
type ExecutionData interface {
	RowsAffected() int64
	// Revision returns the value read by a revision lookup; ok is false when
	// no row matched.
	Revision() (rev int64, ok bool)
	Release() error
}

// Step is one executable backend request.
type Step interface {
	Execute(ec ExecutionContext) error
	Describe() StepDescription
}

// StepDescription is the static, printable shape of a step.
type StepDescription struct {
	Kind               string
	Resource           string
	DiscriminatorParam string
	Discriminator      string
	AllowMultiple      bool
	Control            string
	Conditions         []string
	Inner              *StepDescription
}

// UpdateStep dispatches one insert, update or delete resource.
//
// The discriminator value is fixed at construction. Before dispatch the
// step forces it into the discriminator parameter, and it shapes the
// parameter lists according to its multi-row policy:
//
//   - allowMultiple false, or the document marker is the only multi-valued
//     parameter: every list is truncated to its first element.
//   - allowMultiple true with a control parameter: every multi-valued list
//     is truncated or nil-padded to the control parameter's length.
//
// The caller's parameter map is restored on every exit path.
type UpdateStep struct {
	resource           string
	discriminatorParam string
	discriminator      string
	allowMultiple      bool
	control            string
}

// NewUpdateStep creates an UpdateStep. control is ignored unless
// allowMultiple is set.
func NewUpdateStep(resource, discriminatorParam, discriminator string, allowMultiple bool, control string) *UpdateStep {
	if !allowMultiple {
		control = ""
	}
	return &UpdateStep{
		resource:           resource,
		discriminatorParam: discriminatorParam,
		discriminator:      discriminator,
		allowMultiple:      allowMultiple,
		control:            control,
	}
}

// Resource returns the dispatched resource name.
func (s *UpdateStep) Resource() string { return s.resource }

// AllowMultiple reports whether the step may write several rows.
func (s *UpdateStep) AllowMultiple() bool { return s.allowMultiple }

// Control returns the control parameter, or "".
func (s *UpdateStep) Control() string { return s.control }

// Execute dispatches the step's resource.
func (s *UpdateStep) Execute(ec ExecutionContext) (err error) {
	original := ec.Params()
	if original == nil {
		original = Params{}
	}

	params := s.shape(original, ec.DocumentParam())
	if s.discriminatorParam != "" {
		params[s.discriminatorParam] = []any{s.discriminator}
	}
	ec.SetParams(params)
	defer ec.SetParams(original)

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

	var rows int64
	if data != nil {
		rows = data.RowsAffected()
	}
	ec.Record(StepOutcome{Resource: s.resource, Mode: s.discriminator, Rows: rows})
	return nil
}

// shape applies the multi-row policy to a copy of params. An absent or
// empty control parameter leaves the lists as submitted.
func (s *UpdateStep) shape(params Params, document string) Params {
	if !s.allowMultiple || params.onlyMultiValued(document) {
		return params.truncated()
	}
	if n := len(params[s.control]); s.control != "" && n > 0 {
		return params.balanced(s.control, n)
	}
	return params.Clone()
}

// Describe returns the static description of the step.
func (s *UpdateStep) Describe() StepDescription {
	return StepDescription{
		Kind:               "update",
		Resource:           s.resource,
		DiscriminatorParam: s.discriminatorParam,
		Discriminator:      s.discriminator,
		AllowMultiple:      s.allowMultiple,
		Control:            s.control,
	}
}
