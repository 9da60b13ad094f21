package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/queryir"
	"github.com/roach88/modplan/internal/store"
)

// requestContext is the ExecutionContext of one request. It is bound to the
// request's transaction and used from a single goroutine.
type requestContext struct {
	ctx    context.Context
	e      *Engine
	tx     *store.Tx
	req    Request
	id     string
	now    string
	logger *zap.Logger
	quota  *RowQuota

	params modify.Params
	// generated holds keys allocated during the request, indexed by the
	// parameter that would have carried a submitted key.
	generated map[string][]any

	plan        modify.PlanType
	events      []modify.ChangeEvent
	outstanding int
}

var _ modify.ExecutionContext = (*requestContext)(nil)

func (rc *requestContext) Context() context.Context  { return rc.ctx }
func (rc *requestContext) Params() modify.Params     { return rc.params }
func (rc *requestContext) SetParams(p modify.Params) { rc.params = p }
func (rc *requestContext) DocumentParam() string     { return rc.e.params.Document }
func (rc *requestContext) Logger() *zap.Logger       { return rc.logger }
func (rc *requestContext) setPlan(t modify.PlanType) { rc.plan = t }

// Record appends a change event for the current plan.
func (rc *requestContext) Record(o modify.StepOutcome) {
	rc.events = append(rc.events, modify.ChangeEvent{
		Seq:         rc.e.clock.Next(),
		PlanType:    rc.plan,
		StepOutcome: o,
	})
	result := "executed"
	if o.Skipped {
		result = "skipped"
	}
	rc.e.metrics.steps.WithLabelValues(result).Inc()
}

// recordFailure appends a failed change event for err.
func (rc *requestContext) recordFailure(err error) {
	rc.events = append(rc.events, modify.ChangeEvent{
		Seq:         rc.e.clock.Next(),
		PlanType:    rc.plan,
		StepOutcome: modify.StepOutcome{Resource: failedResource(err)},
		Failed:      true,
	})
	rc.e.metrics.steps.WithLabelValues("failed").Inc()
}

// Dispatch runs a dataset against the request transaction. Write datasets
// run every statement once per aligned row; query datasets run their single
// lookup once.
func (rc *requestContext) Dispatch(resource string) (modify.ExecutionData, error) {
	if err := rc.ctx.Err(); err != nil {
		return nil, modify.NewDispatchError(resource, err)
	}
	ds, ok := rc.e.datasets.Get(resource)
	if !ok {
		return nil, modify.NewDispatchError(resource, ErrUnknownResource)
	}

	data := rc.acquire(resource)
	var err error
	if ds.Mode == dataset.ModeQuery {
		err = rc.query(ds, data)
	} else {
		err = rc.write(ds, data)
	}
	if err != nil {
		var qe *RowsExceededError
		if errors.As(err, &qe) {
			return data, err
		}
		return data, modify.NewDispatchError(resource, err)
	}

	rc.logger.Debug("dispatched",
		zap.String("resource", resource),
		zap.String("mode", string(ds.Mode)),
		zap.Int64("rows", data.rows))
	return data, nil
}

func (rc *requestContext) query(ds *dataset.Dataset, data *executionData) error {
	stmt := ds.Statements[0]
	args, err := rc.args(stmt.Args, 0)
	if err != nil {
		return err
	}
	rev, found, err := rc.tx.QueryRevision(rc.ctx, stmt.SQL, args...)
	if err != nil {
		return err
	}
	data.revision, data.found = rev, found
	return nil
}

func (rc *requestContext) write(ds *dataset.Dataset, data *executionData) error {
	value := ""
	if s, ok := rc.params.First(rc.e.params.Discriminator).(string); ok {
		value = s
	}
	mode, ok := rc.e.modes.Mode(value)
	if !ok || mode != ds.Mode {
		return fmt.Errorf("discriminator %s=%q does not select %s", rc.e.params.Discriminator, value, ds.Mode)
	}

	n := rc.rowCount(ds)
	if err := rc.quota.Take(rc.id, ds.Name, n); err != nil {
		return err
	}

	for _, stmt := range ds.Statements {
		for i := range n {
			args, err := rc.args(stmt.Args, i)
			if err != nil {
				return err
			}
			affected, err := rc.tx.Exec(rc.ctx, stmt.SQL, args...)
			if err != nil {
				return err
			}
			data.rows += affected
		}
	}
	return nil
}

// rowCount is the length of the longest parameter list a dataset reads, and
// at least 1.
func (rc *requestContext) rowCount(ds *dataset.Dataset) int {
	n := 1
	for _, stmt := range ds.Statements {
		for _, name := range sourceParams(stmt.Args) {
			n = max(n, len(rc.params[name]))
		}
	}
	return n
}

func sourceParams(args []queryir.Source) []string {
	var out []string
	for _, src := range args {
		switch s := src.(type) {
		case queryir.Param:
			out = append(out, s.Name)
		case queryir.Revision:
			out = append(out, s.Param)
		case queryir.KeyGen:
			if s.Param != "" {
				out = append(out, s.Param)
			}
		}
	}
	return out
}

// args resolves the placeholder sources of a statement for row i.
func (rc *requestContext) args(sources []queryir.Source, i int) ([]any, error) {
	out := make([]any, len(sources))
	for j, src := range sources {
		v, err := rc.value(src, i)
		if err != nil {
			return nil, err
		}
		out[j] = v
	}
	return out, nil
}

func (rc *requestContext) value(src queryir.Source, i int) (any, error) {
	switch s := src.(type) {
	case queryir.Param:
		return rc.param(s.Name, i), nil
	case queryir.Revision:
		rev, err := modify.ParamInt64(rc.param(s.Param, i))
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", s.Param, err)
		}
		return rev + s.Delta, nil
	case queryir.Now:
		return rc.now, nil
	case queryir.Editor:
		return rc.req.User, nil
	case queryir.RowOrder:
		return int64(i), nil
	case queryir.Literal:
		return s.Value, nil
	case queryir.KeyGen:
		return rc.key(s, i)
	default:
		return nil, fmt.Errorf("unsupported value source %s", src)
	}
}

// param returns the value of name at row i. A single value is broadcast to
// every row and rows past the end of a list read nil. Parameters the request
// did not carry fall back to keys generated earlier in the request.
func (rc *requestContext) param(name string, i int) any {
	if v := rc.params[name]; len(v) > 0 {
		return at(v, i)
	}
	return at(rc.generated[name], i)
}

func at(v []any, i int) any {
	switch {
	case len(v) == 0:
		return nil
	case len(v) == 1:
		return v[0]
	case i < len(v):
		return v[i]
	default:
		return nil
	}
}

// key returns the submitted key at row i, or allocates one from the
// source's sequence. Submitted keys advance the sequence past them.
func (rc *requestContext) key(s queryir.KeyGen, i int) (any, error) {
	if s.Param != "" {
		if v := at(rc.params[s.Param], i); v != nil {
			k, err := modify.ParamInt64(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", s.Param, err)
			}
			if err := rc.tx.AdvanceKey(rc.ctx, s.Sequence, k); err != nil {
				return nil, err
			}
			return k, nil
		}
	}

	k, err := rc.tx.NextKey(rc.ctx, s.Sequence)
	if err != nil {
		return nil, err
	}
	if s.Param != "" {
		keys := rc.generated[s.Param]
		for len(keys) <= i {
			keys = append(keys, nil)
		}
		keys[i] = k
		rc.generated[s.Param] = keys
	}
	return k, nil
}

// generatedKeys returns the keys allocated during the request.
func (rc *requestContext) generatedKeys() map[string][]int64 {
	out := make(map[string][]int64, len(rc.generated))
	for name, keys := range rc.generated {
		ids := make([]int64, 0, len(keys))
		for _, k := range keys {
			if id, ok := k.(int64); ok {
				ids = append(ids, id)
			}
		}
		out[name] = ids
	}
	return out
}

// acquire hands out execution data and tracks it until released.
func (rc *requestContext) acquire(resource string) *executionData {
	rc.outstanding++
	return &executionData{rc: rc, resource: resource}
}

// executionData is the result of one dispatch.
type executionData struct {
	rc       *requestContext
	resource string
	rows     int64
	revision int64
	found    bool
	released bool
}

func (d *executionData) RowsAffected() int64            { return d.rows }
func (d *executionData) Revision() (rev int64, ok bool) { return d.revision, d.found }

// Release returns the handle to its request. Releasing twice is an error.
func (d *executionData) Release() error {
	if d.released {
		return fmt.Errorf("execution data for %s released twice", d.resource)
	}
	d.released = true
	d.rc.outstanding--
	return nil
}
