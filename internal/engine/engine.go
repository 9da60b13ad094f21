package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/store"
)

// Engine executes modify requests against compiled plans.
//
// Thread-safety: Execute may be called from any goroutine. Each request
// runs in its own store transaction; the SQLite backend serializes them.
type Engine struct {
	store    *store.Store
	plans    *modify.Registry
	datasets *dataset.Registry
	params   modify.ParamNames
	modes    modify.Discriminators

	clock   *Clock
	now     func() time.Time
	ids     RequestIDGenerator
	auth    Authorizer
	maxRows int

	logger  *zap.Logger
	reg     prometheus.Registerer
	metrics *metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegisterer registers the engine's metrics on reg. Without it metrics
// go to a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.reg = reg }
}

// WithClock sets the change-log sequence clock. Without it the clock
// resumes after the store's latest sequence.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTimeSource sets the clock read for last-modified timestamps.
func WithTimeSource(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRequestIDGenerator sets the request id generator.
func WithRequestIDGenerator(g RequestIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithAuthorizer installs an authorization check run before every request.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) { e.auth = a }
}

// WithMaxRows caps the rows one request may dispatch. 0 disables the cap.
func WithMaxRows(n int) Option {
	return func(e *Engine) { e.maxRows = n }
}

// WithParamNames sets the parameter names plans were compiled against.
func WithParamNames(p modify.ParamNames) Option {
	return func(e *Engine) { e.params = p }
}

// WithDiscriminators sets the discriminator values plans were compiled
// against.
func WithDiscriminators(d modify.Discriminators) Option {
	return func(e *Engine) { e.modes = d }
}

// New creates an Engine running plans from plans and resources from
// datasets against s.
func New(ctx context.Context, s *store.Store, plans *modify.Registry, datasets *dataset.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    s,
		plans:    plans,
		datasets: datasets,
		params:   modify.DefaultParamNames(),
		modes:    modify.DefaultDiscriminators(),
		now:      time.Now,
		ids:      UUIDv7Generator{},
		maxRows:  DefaultMaxRows,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.reg == nil {
		e.reg = prometheus.NewRegistry()
	}
	e.metrics = newMetrics(e.reg)

	if e.clock == nil {
		seq, err := s.LatestSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("resume change sequence: %w", err)
		}
		e.clock = NewClockAt(seq)
	}
	return e, nil
}

// Result is the outcome of one request.
type Result struct {
	RequestID string
	// Events lists every step outcome in execution order. After a failure
	// the last event is marked Failed and nothing was committed.
	Events []modify.ChangeEvent
	// Keys holds generated keys by the parameter a submitted key would
	// have used, in row order.
	Keys map[string][]int64
}

// Rows returns the total rows affected by the request.
func (r *Result) Rows() int64 {
	var n int64
	for _, ev := range r.Events {
		n += ev.Rows
	}
	return n
}

// Execute runs a request: it resolves the plans for the operation, checks
// the caller and the binary registry, then executes every plan inside one
// transaction. The result is returned even on failure.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	op, err := ParseOperation(string(req.Operation))
	if err != nil {
		return nil, err
	}
	set, ok := e.plans.PlanSet(req.MappingID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMapping, req.MappingID)
	}
	plans, err := resolvePlans(op, set)
	if err != nil {
		return nil, err
	}

	if req.User == "" {
		e.metrics.requests.WithLabelValues(string(op), "rejected").Inc()
		return nil, NewAuthenticationError()
	}
	if e.auth != nil {
		if err := e.auth.Authorize(ctx, req); err != nil {
			e.metrics.requests.WithLabelValues(string(op), "rejected").Inc()
			return nil, NewAuthorizationError(req.User, req.MappingID, err)
		}
	}
	for _, p := range plans {
		if missing := missingBinary(p, req.Params); len(missing) > 0 {
			e.metrics.requests.WithLabelValues(string(op), "rejected").Inc()
			return nil, NewMissingBinaryError(req.MappingID, missing)
		}
	}

	if err := e.prepare(ctx, plans); err != nil {
		return nil, err
	}

	id := e.ids.Generate()
	logger := e.logger.With(
		zap.String("request", id),
		zap.String("mapping", req.MappingID),
		zap.String("operation", string(op)))

	params := req.Params.Clone()
	rc := &requestContext{
		ctx:       ctx,
		e:         e,
		req:       req,
		id:        id,
		now:       formatTime(e.now()),
		logger:    logger,
		quota:     NewRowQuota(e.maxRows),
		params:    params,
		generated: make(map[string][]any),
	}

	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		rc.tx = tx
		for _, p := range plans {
			rc.setPlan(p.Type())
			start := time.Now()
			err := p.Execute(rc)
			e.metrics.planDuration.WithLabelValues(p.Type().String()).Observe(time.Since(start).Seconds())
			if err != nil {
				rc.recordFailure(err)
				return err
			}
		}
		return e.writeChanges(ctx, tx, rc, op)
	})
	if rc.outstanding != 0 {
		logger.Warn("execution data not released", zap.Int("outstanding", rc.outstanding))
	}

	result := &Result{RequestID: id, Events: rc.events, Keys: rc.generatedKeys()}
	if err != nil {
		e.metrics.requests.WithLabelValues(string(op), "failed").Inc()
		logger.Info("request failed", zap.Error(err))
		return result, err
	}

	e.metrics.requests.WithLabelValues(string(op), "committed").Inc()
	logger.Info("request committed",
		zap.Int("events", len(rc.events)),
		zap.Int64("rows", result.Rows()))
	return result, nil
}

// prepare caches the statements of every resource the plans dispatch.
// Statements are prepared outside the request transaction.
func (e *Engine) prepare(ctx context.Context, plans []*modify.Plan) error {
	var names []string
	for _, p := range plans {
		names = append(names, p.Resources()...)
	}
	if err := e.store.Prepare(ctx, e.datasets.SQL(names...)...); err != nil {
		return fmt.Errorf("prepare statements: %w", err)
	}
	return nil
}

// writeChanges persists the request's change events inside its transaction.
func (e *Engine) writeChanges(ctx context.Context, tx *store.Tx, rc *requestContext, op Operation) error {
	contentID, _ := modify.ParamInt64(rc.param(e.params.ContentID, 0))
	for i, ev := range rc.events {
		rec := store.ChangeRecord{
			RequestID:  rc.id,
			Seq:        ev.Seq,
			Step:       i + 1,
			ContentID:  contentID,
			Operation:  string(op),
			PlanType:   ev.PlanType.String(),
			Resource:   ev.Resource,
			Mode:       ev.Mode,
			Skipped:    ev.Skipped,
			Rows:       ev.Rows,
			Editor:     rc.req.User,
			RecordedAt: rc.now,
		}
		if err := tx.WriteChange(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// missingBinary returns the binary fields of p whose parameter the request
// does not carry or carries as an empty list. An explicit null is a
// resubmission.
func missingBinary(p *modify.Plan, params Params) map[string]string {
	var missing map[string]string
	for field, param := range p.BinaryFields() {
		if len(params[param]) > 0 {
			continue
		}
		if missing == nil {
			missing = make(map[string]string)
		}
		missing[field] = param
	}
	return missing
}
