package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue"
	"go.uber.org/zap"

	"github.com/roach88/modplan/internal/compiler"
	"github.com/roach88/modplan/internal/config"
	"github.com/roach88/modplan/internal/engine"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/testutil"
)

// OutcomeCommitted is the trace outcome of a request that committed.
const OutcomeCommitted = "committed"

// errReadOnly is the cause recorded when a read-only user is refused.
var errReadOnly = errors.New("user is read-only")

// Harness runs the requests of one scenario against a fresh runtime.
type Harness struct {
	rt       *config.Runtime
	scenario *Scenario
	logger   *zap.Logger
	// clock advances once per request so each request stamps Epoch plus
	// its ordinal in seconds.
	clock *testutil.DeterministicClock
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Request ids and timestamps are deterministic, so traces and change logs
// are reproducible.
//
// Execution flow:
// 1. Compile and validate the content type definitions
// 2. Open an in-memory store with tables, plans and an engine
// 3. Execute setup requests, which must all commit
// 4. Execute flow requests and check their expect clauses
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a context and a logger for engine output. A nil
// logger discards logs.
func RunContext(ctx context.Context, scenario *Scenario, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := config.Default()
	cfg.Store.DSN = ":memory:"
	if scenario.MaxRows != nil {
		cfg.Engine.MaxRows = *scenario.MaxRows
	}

	types, err := loadDefinitions(scenario, cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	prefix := scenario.RequestPrefix
	if prefix == "" {
		prefix = "req"
	}
	clock := testutil.NewDeterministicClock()
	opts := []engine.Option{
		engine.WithTimeSource(clock.Now),
		engine.WithRequestIDGenerator(testutil.NewFixedRequestIDGenerator(prefix)),
	}
	if len(scenario.ReadOnly) > 0 {
		opts = append(opts, engine.WithAuthorizer(readOnlyAuthorizer(scenario.ReadOnly)))
	}

	rt, err := cfg.Open(ctx, types, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open runtime: %w", err)
	}
	defer rt.Close()

	h := &Harness{rt: rt, scenario: scenario, logger: logger.Named("harness"), clock: clock}
	result := NewResult()

	if err := h.executeSetup(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, result)

	actx := &AssertionContext{
		Store: rt.Store,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// loadDefinitions compiles the scenario's content types from its
// definitions directory or its inline source.
func loadDefinitions(s *Scenario, cols ir.SystemColumns) ([]*ir.ContentType, error) {
	var (
		v   cue.Value
		err error
	)
	if s.Definitions != "" {
		v, err = compiler.LoadDir(s.Definitions)
	} else {
		v, err = compiler.CompileString(s.Source)
	}
	if err != nil {
		return nil, err
	}
	return compiler.Definitions(v, cols)
}

// executeSetup runs all setup requests. A setup request that fails stops
// the scenario.
func (h *Harness) executeSetup(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Setup {
		res, err := h.execute(ctx, i, step, result)
		if err != nil {
			return fmt.Errorf("setup[%d] %s %s: %w", i, step.Operation, step.Mapping, err)
		}
		h.logger.Debug("setup request committed",
			zap.Int("step", i),
			zap.String("request", res.RequestID))
	}
	return nil
}

// executeFlow runs all flow requests and validates expect clauses. A flow
// step without an expect clause must commit.
func (h *Harness) executeFlow(ctx context.Context, result *Result) {
	base := len(h.scenario.Setup)
	for i, step := range h.scenario.Flow {
		where := fmt.Sprintf("flow[%d]", i)
		res, err := h.execute(ctx, base+i, step, result)

		expect := step.Expect
		if expect == nil {
			expect = &ExpectClause{}
		}

		if got := engine.ErrorCode(err); got != expect.Error {
			if expect.Error == "" {
				result.AddError(fmt.Sprintf("%s: expected commit, got %s: %v", where, got, err))
			} else {
				result.AddError(fmt.Sprintf("%s: expected error %s, got %q", where, expect.Error, got))
			}
			continue
		}

		for _, name := range slices.Sorted(maps.Keys(expect.Keys)) {
			var got []int64
			if res != nil {
				got = res.Keys[name]
			}
			if !slices.Equal(got, expect.Keys[name]) {
				result.AddError(fmt.Sprintf("%s: keys[%s]: expected %v, got %v", where, name, expect.Keys[name], got))
			}
		}

		if expect.Rows != nil {
			var got int64
			if res != nil {
				got = res.Rows()
			}
			if got != *expect.Rows {
				result.AddError(fmt.Sprintf("%s: rows: expected %d, got %d", where, *expect.Rows, got))
			}
		}
	}
}

// execute submits one request and records it in the trace. The engine
// result may be nil when the request was rejected before execution.
func (h *Harness) execute(ctx context.Context, index int, step RequestStep, result *Result) (*engine.Result, error) {
	result.AddRequestTrace(index, step.Mapping, step.Operation)
	h.clock.Next()

	res, err := h.rt.Engine.Execute(ctx, engine.Request{
		MappingID: step.Mapping,
		Operation: engine.Operation(step.Operation),
		Params:    modify.ParamsFrom(step.Params),
		User:      h.user(step),
	})

	var requestID string
	if res != nil {
		requestID = res.RequestID
		for _, ev := range res.Events {
			result.AddStepTrace(index, ev)
		}
	}

	outcome := OutcomeCommitted
	if err != nil {
		outcome = engine.ErrorCode(err)
	}
	result.AddOutcomeTrace(index, requestID, outcome)

	h.logger.Debug("request executed",
		zap.Int("request", index),
		zap.String("mapping", step.Mapping),
		zap.String("operation", step.Operation),
		zap.String("outcome", outcome))
	return res, err
}

func (h *Harness) user(step RequestStep) string {
	switch {
	case step.Anonymous:
		return ""
	case step.User != "":
		return step.User
	case h.scenario.User != "":
		return h.scenario.User
	default:
		return DefaultUser
	}
}

func readOnlyAuthorizer(users []string) engine.Authorizer {
	return engine.AuthorizerFunc(func(_ context.Context, req engine.Request) error {
		if slices.Contains(users, req.User) {
			return errReadOnly
		}
		return nil
	})
}
