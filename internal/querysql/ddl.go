package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/queryir"
)

// CreateTables returns idempotent CREATE TABLE statements for every field set
// of a content type, root first.
//
// Parent tables are keyed by content id and carry the bookkeeping columns.
// Child tables carry the owning content id, the parent id (the content id for
// top-level children, the owning complex child id for nested ones) and the
// row order. Complex children are keyed by child id.
func (c *SQLCompiler) CreateTables(ct *ir.ContentType, cols ir.SystemColumns) ([]string, error) {
	var out []string
	for _, fs := range ct.FieldSets() {
		stmts, err := c.createTable(fs, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

func (c *SQLCompiler) createTable(fs *ir.FieldSet, cols ir.SystemColumns) ([]string, error) {
	if !queryir.ValidIdentifier(fs.Table) {
		return nil, fmt.Errorf("field set %q: invalid table name %q", fs.Name, fs.Table)
	}

	var defs []string
	switch fs.Shape {
	case ir.ShapeParent:
		defs = append(defs,
			cols.ContentID+" BIGINT PRIMARY KEY",
			cols.Revision+" BIGINT NOT NULL DEFAULT 0",
			cols.EditLock+" TEXT",
			cols.LastModified+" TEXT",
			cols.LastModifiedBy+" TEXT",
		)
	case ir.ShapeSimpleChild:
		defs = append(defs,
			cols.ContentID+" BIGINT NOT NULL",
			cols.ParentID+" BIGINT NOT NULL",
			cols.RowOrder+" BIGINT NOT NULL",
		)
	case ir.ShapeComplexChild:
		defs = append(defs,
			cols.ChildID+" BIGINT PRIMARY KEY",
			cols.ContentID+" BIGINT NOT NULL",
			cols.ParentID+" BIGINT NOT NULL",
			cols.RowOrder+" BIGINT NOT NULL",
		)
	default:
		return nil, fmt.Errorf("field set %q: unknown shape %v", fs.Name, fs.Shape)
	}

	for _, f := range fs.Fields {
		if !queryir.ValidIdentifier(f.Column) {
			return nil, fmt.Errorf("field set %q: invalid column name %q", fs.Name, f.Column)
		}
		if cols.IsSystem(f.Column) {
			return nil, fmt.Errorf("field set %q: column %q collides with a system column", fs.Name, f.Column)
		}
		defs = append(defs, f.Column+" "+c.columnType(f.Kind))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", fs.Table, strings.Join(defs, ", "))}
	if fs.Shape != ir.ShapeParent {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s, %s)",
			fs.Table, cols.ParentID, fs.Table, cols.ContentID, cols.ParentID))
	}
	return stmts, nil
}

// columnType maps a field kind to a column type for the dialect.
func (c *SQLCompiler) columnType(kind ir.FieldKind) string {
	switch kind {
	case ir.KindInt:
		return "BIGINT"
	case ir.KindBool:
		if c.dialect == DialectPostgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	case ir.KindBinary:
		if c.dialect == DialectPostgres {
			return "BYTEA"
		}
		return "BLOB"
	default:
		return "TEXT"
	}
}
