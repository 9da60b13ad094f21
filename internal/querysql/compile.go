// Package querysql compiles mutation IR statements to parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated). Only validated
// identifiers from the mutation IR are written into SQL text.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/modplan/internal/queryir"
)

// Dialect selects placeholder syntax and column types.
type Dialect string

const (
	// DialectSQLite uses "?" placeholders.
	DialectSQLite Dialect = "sqlite3"
	// DialectPostgres uses "$n" placeholders.
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a database/sql driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", driver)
	}
}

// Compiled is one SQL statement plus the sources of its placeholders, in
// placeholder order. The dispatcher resolves Args per row.
type Compiled struct {
	SQL  string
	Args []queryir.Source
	// Query is true for statements that return a value (revision lookups).
	Query bool
}

// SQLCompiler compiles mutation IR to SQL for one dialect.
type SQLCompiler struct {
	dialect Dialect
}

// NewSQLCompiler creates a compiler for the given dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *SQLCompiler) Dialect() Dialect {
	return c.dialect
}

// Compile converts a statement to parameterized SQL.
// The statement is validated first; invalid statements never reach SQL text.
func (c *SQLCompiler) Compile(stmt queryir.Statement) (Compiled, error) {
	if stmt == nil {
		return Compiled{}, fmt.Errorf("cannot compile nil statement")
	}
	if err := queryir.Validate(stmt); err != nil {
		return Compiled{}, err
	}

	b := &builder{dialect: c.dialect}
	switch s := stmt.(type) {
	case *queryir.Insert:
		return b.insert(s), nil
	case *queryir.Update:
		return b.update(s), nil
	case *queryir.Delete:
		return b.delete(s), nil
	case *queryir.SelectRevision:
		return b.selectRevision(s), nil
	default:
		return Compiled{}, fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// builder accumulates placeholder sources while writing SQL.
type builder struct {
	dialect Dialect
	args    []queryir.Source
}

// placeholder registers a source and returns its placeholder text.
func (b *builder) placeholder(src queryir.Source) string {
	b.args = append(b.args, src)
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

func (b *builder) insert(s *queryir.Insert) Compiled {
	names := make([]string, len(s.Columns))
	values := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
		values[i] = b.placeholder(col.Source)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.Table, strings.Join(names, ", "), strings.Join(values, ", "))

	if len(s.ConflictKeys) > 0 {
		keys := make(map[string]bool, len(s.ConflictKeys))
		for _, k := range s.ConflictKeys {
			keys[k] = true
		}
		var sets []string
		for _, col := range s.Columns {
			if !keys[col.Name] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", col.Name, col.Name))
			}
		}
		sql += fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(s.ConflictKeys, ", "))
		if len(sets) == 0 {
			sql += " DO NOTHING"
		} else {
			sql += " DO UPDATE SET " + strings.Join(sets, ", ")
		}
	}

	return Compiled{SQL: sql, Args: b.args}
}

func (b *builder) update(s *queryir.Update) Compiled {
	sets := make([]string, len(s.Set))
	for i, col := range s.Set {
		sets[i] = fmt.Sprintf("%s = %s", col.Name, b.placeholder(col.Source))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		s.Table, strings.Join(sets, ", "), b.where(s.Where))
	return Compiled{SQL: sql, Args: b.args}
}

func (b *builder) delete(s *queryir.Delete) Compiled {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", s.Table, b.where(s.Where))
	return Compiled{SQL: sql, Args: b.args}
}

func (b *builder) selectRevision(s *queryir.SelectRevision) Compiled {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		s.Revision, s.Table, b.where(s.Where))
	return Compiled{SQL: sql, Args: b.args, Query: true}
}

// where compiles a conjunction of column equalities.
func (b *builder) where(cols []queryir.Column) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s = %s", col.Name, b.placeholder(col.Source))
	}
	return strings.Join(parts, " AND ")
}
