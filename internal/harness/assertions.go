package harness

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/modplan/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	steps := 0
	for _, event := range e.Trace {
		if event.Type == EventStep {
			steps++
		}
	}
	if steps == 0 {
		return buf.String()
	}

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		if event.Type != EventStep {
			continue
		}
		fmt.Fprintf(&buf, "  [%d] %s %s mode=%s rows=%d", event.Seq, event.PlanType, event.Resource, event.Mode, event.Rows)
		if event.Skipped {
			buf.WriteString(" skipped")
		}
		if event.Failed {
			buf.WriteString(" failed")
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// assertChangeContains checks that some step event dispatched the resource,
// optionally narrowed by plan type and skip status.
func assertChangeContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != EventStep || event.Resource != assertion.Resource {
			continue
		}
		if assertion.PlanType != "" && event.PlanType != assertion.PlanType {
			continue
		}
		if assertion.Skipped != nil && event.Skipped != *assertion.Skipped {
			continue
		}
		return nil
	}

	expected := "step on " + assertion.Resource
	if assertion.PlanType != "" {
		expected += " in " + assertion.PlanType
	}
	if assertion.Skipped != nil {
		expected += fmt.Sprintf(" with skipped=%t", *assertion.Skipped)
	}
	return &AssertionError{
		Type:     AssertChangeContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertChangeOrder checks that resources are first dispatched in the
// specified order. Other steps may appear in between.
func assertChangeOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)

	for i, event := range trace {
		if event.Type != EventStep {
			continue
		}
		for _, resource := range assertion.Resources {
			if event.Resource == resource && positions[resource] == 0 {
				positions[resource] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, resource := range assertion.Resources {
		if positions[resource] == 0 {
			return &AssertionError{
				Type:     AssertChangeOrder,
				Expected: fmt.Sprintf("all resources present: %v", assertion.Resources),
				Actual:   fmt.Sprintf("missing resource: %s", resource),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Resources); i++ {
		prev := assertion.Resources[i-1]
		curr := assertion.Resources[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertChangeOrder,
				Expected: fmt.Sprintf("resources in order: %v", assertion.Resources),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertChangeCount checks that the resource was dispatched exactly the
// specified number of times.
func assertChangeCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventStep && event.Resource == assertion.Resource {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertChangeCount,
			Expected: fmt.Sprintf("%d steps on %s", assertion.Count, assertion.Resource),
			Actual:   fmt.Sprintf("%d steps", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds the expected values (subset semantics).
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	query, args, err := selectQuery("*", assertion)
	if err != nil {
		return err
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	whereDesc := formatWhereClause(assertion.Where)
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Check for multiple matching rows (would indicate ambiguous assertion)
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// assertRowCount checks how many rows of the table match Where.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	query, args, err := selectQuery("COUNT(*)", assertion)
	if err != nil {
		return err
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// assertChangeLog checks how many change records were persisted for a
// content id. Failed requests never reach the change log.
func assertChangeLog(ctx context.Context, st *store.Store, trace []TraceEvent, assertion Assertion) error {
	records, err := st.ReadChanges(ctx, assertion.ContentID)
	if err != nil {
		return fmt.Errorf("read changes: %w", err)
	}
	if len(records) != assertion.Count {
		return &AssertionError{
			Type:     AssertChangeLog,
			Expected: fmt.Sprintf("%d change records for content %d", assertion.Count, assertion.ContentID),
			Actual:   fmt.Sprintf("%d change records", len(records)),
			Trace:    trace,
		}
	}
	return nil
}

// selectQuery builds a SELECT over the assertion's table and Where filters.
func selectQuery(what string, assertion Assertion) (string, []any, error) {
	if assertion.Table == "" {
		return "", nil, fmt.Errorf("%s assertion requires table name", assertion.Type)
	}

	// Validate table name to prevent SQL injection (identifiers can't be parameterized)
	if !validIdentifier.MatchString(assertion.Table) {
		return "", nil, fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", what, assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	return query, whereArgs, nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
// A nil value matches NULL.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := slices.Sorted(maps.Keys(where))
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", key))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := slices.Sorted(maps.Keys(where))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from content tables.
// Handles type coercion for driver values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		switch a := actual.(type) {
		case string:
			return exp == a
		case []byte:
			return exp == string(a)
		}
		return false
	case int:
		switch a := actual.(type) {
		case int64:
			return int64(exp) == a
		case int:
			return exp == a
		}
		return false
	case int64:
		if a, ok := actual.(int64); ok {
			return exp == a
		}
		return false
	case bool:
		if a, ok := actual.(bool); ok {
			return exp == a
		}
		// SQLite stores booleans as integers
		if a, ok := actual.(int64); ok {
			return exp == (a != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertChangeContains:
			err = assertChangeContains(result.Trace, assertion)
		case AssertChangeOrder:
			err = assertChangeOrder(result.Trace, assertion)
		case AssertChangeCount:
			err = assertChangeCount(result.Trace, assertion)
		case AssertFinalState, AssertRowCount, AssertChangeLog:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			case AssertRowCount:
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			default:
				err = assertChangeLog(actx.Ctx, actx.Store, result.Trace, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
