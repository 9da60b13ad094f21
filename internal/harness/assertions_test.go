package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modplan/internal/store"
)

func step(seq int64, planType, resource, mode string, rows int64) TraceEvent {
	return TraceEvent{Type: EventStep, Seq: seq, PlanType: planType, Resource: resource, Mode: mode, Rows: rows}
}

// saveTrace is the trace of a tag save after an article insert.
func saveTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventRequest, Mapping: "7", Operation: "insert"},
		step(1, "INSERT_PLAN", "Revision7", "query", 0),
		step(2, "INSERT_PLAN", "Insert7", "insert", 1),
		{Type: EventOutcome, Outcome: OutcomeCommitted, RequestID: "req-1"},
		{Type: EventRequest, Request: 1, Mapping: "3", Operation: "save"},
		step(3, "TYPE_UPDATE_PLAN", "SimpleDelete3", "delete", 0),
		{Type: EventStep, Request: 1, Seq: 4, PlanType: "INSERT_PLAN", Resource: "SimpleInsert3", Mode: "insert", Skipped: true},
		{Type: EventOutcome, Request: 1, Outcome: OutcomeCommitted, RequestID: "req-2"},
	}
}

func TestAssertChangeContains(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name      string
		assertion Assertion
		found     bool
	}{
		{"resource only", Assertion{Resource: "Insert7"}, true},
		{"plan type matches", Assertion{Resource: "SimpleDelete3", PlanType: "TYPE_UPDATE_PLAN"}, true},
		{"plan type differs", Assertion{Resource: "SimpleDelete3", PlanType: "INSERT_PLAN"}, false},
		{"skipped matches", Assertion{Resource: "SimpleInsert3", Skipped: &yes}, true},
		{"skipped differs", Assertion{Resource: "SimpleInsert3", Skipped: &no}, false},
		{"absent resource", Assertion{Resource: "ComplexInsert5"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertChangeContains
			err := assertChangeContains(saveTrace(), tt.assertion)
			if tt.found {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var assertErr *AssertionError
			require.ErrorAs(t, err, &assertErr)
			assert.Equal(t, AssertChangeContains, assertErr.Type)
			assert.Contains(t, assertErr.Expected, tt.assertion.Resource)
			assert.Equal(t, "not found in trace", assertErr.Actual)
		})
	}
}

func TestAssertChangeOrder_Correct(t *testing.T) {
	err := assertChangeOrder(saveTrace(), Assertion{
		Type:      AssertChangeOrder,
		Resources: []string{"Revision7", "SimpleDelete3", "SimpleInsert3"},
	})
	assert.NoError(t, err)
}

func TestAssertChangeOrder_InterveningStepsAllowed(t *testing.T) {
	err := assertChangeOrder(saveTrace(), Assertion{
		Type:      AssertChangeOrder,
		Resources: []string{"Revision7", "SimpleInsert3"},
	})
	assert.NoError(t, err)
}

func TestAssertChangeOrder_WrongOrder(t *testing.T) {
	err := assertChangeOrder(saveTrace(), Assertion{
		Type:      AssertChangeOrder,
		Resources: []string{"SimpleInsert3", "Insert7"},
	})
	require.Error(t, err)

	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Actual, "SimpleInsert3 (pos 7) should be before Insert7 (pos 3)")
}

func TestAssertChangeOrder_MissingResource(t *testing.T) {
	err := assertChangeOrder(saveTrace(), Assertion{
		Type:      AssertChangeOrder,
		Resources: []string{"Insert7", "ComplexInsert5"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing resource: ComplexInsert5")
}

func TestAssertChangeCount(t *testing.T) {
	tests := []struct {
		resource string
		count    int
		ok       bool
	}{
		{"Revision7", 1, true},
		{"Insert7", 2, false},
		{"ComplexInsert5", 0, true},
		{"SimpleDelete3", 0, false},
	}

	for _, tt := range tests {
		err := assertChangeCount(saveTrace(), Assertion{Type: AssertChangeCount, Resource: tt.resource, Count: tt.count})
		if tt.ok {
			assert.NoError(t, err, tt.resource)
		} else {
			assert.Error(t, err, tt.resource)
		}
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertChangeCount,
		Expected: "2 steps on Insert7",
		Actual:   "1 steps",
		Trace:    saveTrace(),
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: change_count")
	assert.Contains(t, msg, "Expected: 2 steps on Insert7")
	assert.Contains(t, msg, "Actual: 1 steps")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[2] INSERT_PLAN Insert7 mode=insert rows=1")
	assert.Contains(t, msg, "[4] INSERT_PLAN SimpleInsert3 mode=insert rows=0 skipped")

	bare := &AssertionError{Type: AssertRowCount, Expected: "1 rows", Actual: "0 rows"}
	assert.NotContains(t, bare.Error(), "Full trace")
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	result := &Result{Trace: saveTrace()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertChangeContains, Resource: "Insert7"},
		{Type: AssertChangeCount, Resource: "Insert7", Count: 3},
		{Type: "trace_contains"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "3 steps on Insert7")
	assert.Contains(t, errs[1], `unknown assertion type "trace_contains"`)
}

func TestEvaluateAssertions_StateWithoutContext_Fail(t *testing.T) {
	result := &Result{Trace: []TraceEvent{}}

	for _, a := range []Assertion{
		{Type: AssertFinalState, Table: "t", Expect: map[string]any{"col": "val"}},
		{Type: AssertRowCount, Table: "t"},
		{Type: AssertChangeLog, ContentID: 1},
	} {
		errs := EvaluateAssertions(result, []Assertion{a}, nil)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], a.Type+" requires database context")
	}
}

func TestBuildWhereClause(t *testing.T) {
	sqlStr, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sqlStr)
	assert.Nil(t, args)

	sqlStr, args, err = buildWhereClause(map[string]any{"tag": "go", "content_id": 1, "parent_id": nil})
	require.NoError(t, err)
	assert.Equal(t, "content_id = ? AND parent_id IS NULL AND tag = ?", sqlStr)
	assert.Equal(t, []any{1, "go"}, args)
}

func TestBuildWhereClause_NoInterpolation(t *testing.T) {
	malicious := "'; DROP TABLE article; --"
	sqlStr, args, err := buildWhereClause(map[string]any{"title": malicious})
	require.NoError(t, err)
	assert.NotContains(t, sqlStr, "DROP")
	assert.Equal(t, []any{malicious}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	for _, col := range []string{"a b", "a;b", "1col", "col-name", ""} {
		_, _, err := buildWhereClause(map[string]any{col: 1})
		require.Error(t, err, col)
		assert.Contains(t, err.Error(), "invalid column name")
	}
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	err := assertFinalState(context.Background(), nil, Assertion{
		Type: AssertFinalState, Table: "article; DROP TABLE x", Expect: map[string]any{"a": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestToSQLValue_Types(t *testing.T) {
	assert.Equal(t, "s", toSQLValue("s"))
	assert.Equal(t, 1, toSQLValue(1))
	assert.Equal(t, int64(2), toSQLValue(int64(2)))
	assert.Equal(t, true, toSQLValue(true))
	assert.Equal(t, "1.5", toSQLValue(1.5))
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		equal    bool
	}{
		{"string", "a", "a", true},
		{"string bytes", "a", []byte("a"), true},
		{"string mismatch", "a", "b", false},
		{"int to int64", 1, int64(1), true},
		{"int mismatch", 1, int64(2), false},
		{"int64", int64(3), int64(3), true},
		{"bool from integer", true, int64(1), true},
		{"bool false", false, int64(0), true},
		{"both nil", nil, nil, true},
		{"expected nil", nil, "a", false},
		{"actual nil", "a", nil, false},
		{"int vs string", 1, "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

// Integration tests against a real database

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.DB().Exec(`
		CREATE TABLE article_tags (
			content_id INTEGER NOT NULL,
			row_order INTEGER NOT NULL,
			tag TEXT
		)
	`)
	require.NoError(t, err)
	for i, tag := range []any{"go", "sql", nil} {
		_, err := st.DB().Exec(`INSERT INTO article_tags (content_id, row_order, tag) VALUES (?, ?, ?)`, 1, i, tag)
		require.NoError(t, err)
	}
	return st
}

func TestAssertFinalState_RowFound_Pass(t *testing.T) {
	st := setupTestStore(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:   AssertFinalState,
		Table:  "article_tags",
		Where:  map[string]any{"content_id": 1, "row_order": 1},
		Expect: map[string]any{"tag": "sql"},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_NullValues(t *testing.T) {
	st := setupTestStore(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type:   AssertFinalState,
		Table:  "article_tags",
		Where:  map[string]any{"tag": nil},
		Expect: map[string]any{"row_order": 2, "tag": nil},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_Failures(t *testing.T) {
	st := setupTestStore(t)

	tests := []struct {
		name   string
		where  map[string]any
		expect map[string]any
		actual string
	}{
		{"row not found", map[string]any{"content_id": 2}, map[string]any{"tag": "go"}, "row not found"},
		{"ambiguous", map[string]any{"content_id": 1}, map[string]any{"tag": "go"}, "multiple rows matched"},
		{"value mismatch", map[string]any{"row_order": 0}, map[string]any{"tag": "rust"}, `field "tag" = go`},
		{"missing column", map[string]any{"row_order": 0}, map[string]any{"title": "x"}, `field "title" not present`},
		{"type mismatch", map[string]any{"row_order": 0}, map[string]any{"row_order": "0"}, `field "row_order" = 0 (type int64)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(context.Background(), st, Assertion{
				Type: AssertFinalState, Table: "article_tags", Where: tt.where, Expect: tt.expect,
			})
			require.Error(t, err)
			var assertErr *AssertionError
			require.ErrorAs(t, err, &assertErr)
			assert.Equal(t, AssertFinalState, assertErr.Type)
			assert.Contains(t, assertErr.Actual, tt.actual)
		})
	}
}

func TestAssertFinalState_TableNotFound_Fail(t *testing.T) {
	st := setupTestStore(t)

	err := assertFinalState(context.Background(), st, Assertion{
		Type: AssertFinalState, Table: "missing", Expect: map[string]any{"a": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")
}

func TestAssertRowCount(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, st, Assertion{Type: AssertRowCount, Table: "article_tags", Count: 3}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{
		Type: AssertRowCount, Table: "article_tags", Where: map[string]any{"tag": "go"}, Count: 1,
	}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{
		Type: AssertRowCount, Table: "article_tags", Where: map[string]any{"content_id": 9}, Count: 0,
	}))

	err := assertRowCount(ctx, st, Assertion{Type: AssertRowCount, Table: "article_tags", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 rows in article_tags where (no conditions)")
	assert.Contains(t, err.Error(), "Actual: 3 rows")
}

func TestAssertChangeLog(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		for step := 1; step <= 2; step++ {
			if err := tx.WriteChange(ctx, store.ChangeRecord{
				RequestID: "req-1", Seq: int64(step), Step: step, ContentID: 1,
				Operation: "insert", PlanType: "INSERT_PLAN", Resource: "Insert7", Mode: "insert",
				Editor: "alice", RecordedAt: "2024-01-01T00:00:00Z",
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	assert.NoError(t, assertChangeLog(ctx, st, nil, Assertion{Type: AssertChangeLog, ContentID: 1, Count: 2}))
	assert.NoError(t, assertChangeLog(ctx, st, nil, Assertion{Type: AssertChangeLog, ContentID: 2, Count: 0}))

	err := assertChangeLog(ctx, st, nil, Assertion{Type: AssertChangeLog, ContentID: 1, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 change records for content 1")
}

func TestEvaluateAssertions_StateWithContext_Pass(t *testing.T) {
	st := setupTestStore(t)

	errs := EvaluateAssertions(&Result{Trace: saveTrace()}, []Assertion{
		{Type: AssertFinalState, Table: "article_tags", Where: map[string]any{"tag": "go"}, Expect: map[string]any{"row_order": 0}},
		{Type: AssertRowCount, Table: "article_tags", Where: map[string]any{"content_id": 1}, Count: 3},
		{Type: AssertChangeLog, ContentID: 1, Count: 0},
	}, &AssertionContext{Store: st, Ctx: context.Background()})
	assert.Empty(t, errs)
}
