package queryir

import (
	"fmt"
	"regexp"
	"strings"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers are interpolated into SQL, so anything else is rejected.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a table or column name.
func ValidIdentifier(s string) bool {
	return validIdentifier.MatchString(s)
}

// ValidationError lists every problem found in a statement.
type ValidationError struct {
	Table  string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid statement for table %q: %s", e.Table, strings.Join(e.Issues, "; "))
}

// Validate checks a statement before it is registered with a backend.
//
// Rules:
//  1. Table and column names are valid identifiers
//  2. Column names are unique within a column list
//  3. Every column has a source
//  4. Update and Delete carry at least one Where column (no unguarded writes)
//  5. Insert has at least one column; conflict keys name inserted columns
//
// Validate does not fail fast; it returns every issue found, or nil.
func Validate(stmt Statement) error {
	v := &validator{}
	v.validate(stmt)
	if len(v.issues) == 0 {
		return nil
	}
	table := ""
	if stmt != nil {
		table = stmt.TableName()
	}
	return &ValidationError{Table: table, Issues: v.issues}
}

// validator accumulates issues during traversal.
type validator struct {
	issues []string
}

func (v *validator) addIssue(format string, args ...any) {
	v.issues = append(v.issues, fmt.Sprintf(format, args...))
}

func (v *validator) validate(stmt Statement) {
	if stmt == nil {
		v.addIssue("nil statement")
		return
	}
	if !ValidIdentifier(stmt.TableName()) {
		v.addIssue("invalid table name %q", stmt.TableName())
	}

	switch s := stmt.(type) {
	case *Insert:
		if len(s.Columns) == 0 {
			v.addIssue("insert has no columns")
		}
		v.validateColumns("columns", s.Columns)
		for _, key := range s.ConflictKeys {
			if !hasColumn(s.Columns, key) {
				v.addIssue("conflict key %q is not an inserted column", key)
			}
		}
	case *Update:
		if len(s.Set) == 0 {
			v.addIssue("update has no set columns")
		}
		if len(s.Where) == 0 {
			v.addIssue("update has no where columns")
		}
		v.validateColumns("set", s.Set)
		v.validateColumns("where", s.Where)
	case *Delete:
		if len(s.Where) == 0 {
			v.addIssue("delete has no where columns")
		}
		v.validateColumns("where", s.Where)
	case *SelectRevision:
		if !ValidIdentifier(s.Revision) {
			v.addIssue("invalid revision column %q", s.Revision)
		}
		if len(s.Where) == 0 {
			v.addIssue("revision lookup has no where columns")
		}
		v.validateColumns("where", s.Where)
	default:
		v.addIssue("unsupported statement type %T", stmt)
	}
}

func (v *validator) validateColumns(list string, cols []Column) {
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if !ValidIdentifier(c.Name) {
			v.addIssue("%s[%d]: invalid column name %q", list, i, c.Name)
		}
		if seen[c.Name] {
			v.addIssue("%s[%d]: duplicate column %q", list, i, c.Name)
		}
		seen[c.Name] = true
		if c.Source == nil {
			v.addIssue("%s[%d]: column %q has no source", list, i, c.Name)
		}
	}
}

func hasColumn(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}
