package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/modplan/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Content type errors (E101-E109)
	ErrMissingRoot         = "E101" // content type has no name or root field set
	ErrEmptyFieldSet       = "E102" // field set declares no fields
	ErrInvalidNesting      = "E103" // shape not allowed at this depth
	ErrInvalidFieldKind    = "E104" // unknown field kind
	ErrDuplicateName       = "E105" // duplicate field, child, table or column name
	ErrSimpleChildFields   = "E106" // simple child must own exactly one field
	ErrInvalidIdentifier   = "E107" // table or column is not a SQL identifier
	ErrReservedColumn      = "E108" // field column collides with a system column
	ErrBinaryInSimpleChild = "E109" // simple child value cannot be binary

	// Display mapping errors (E110-E119)
	ErrMissingMapping      = "E110" // field set mapping id not registered
	ErrUnknownMappingField = "E111" // mapping references an unknown field
	ErrDuplicateMapping    = "E112" // mapping id used by more than one field set
	ErrDuplicateParam      = "E113" // two fields of a mapping share a parameter
	ErrEmptyMapping        = "E114" // mapping references no fields

	// Cross-type errors (E120-E129)
	ErrTableConflict = "E120" // two content types write the same table
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// identPattern matches unquoted SQL identifiers accepted by every dialect.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a compiled content type against the structural rules the
// plan builder relies on. Returns all errors found (does not fail-fast).
//
// Nesting: the root is a parent; a parent may hold simple and complex
// children; a complex child may hold simple children only; simple children
// are leaves.
func Validate(ct *ir.ContentType, cols ir.SystemColumns) []ValidationError {
	var errs []ValidationError

	if ct == nil || ct.Root == nil || ct.Name == "" {
		return []ValidationError{{
			Field:   "contentType",
			Message: "content type requires a name and a root field set",
			Code:    ErrMissingRoot,
		}}
	}

	if ct.Root.Shape != ir.ShapeParent {
		errs = append(errs, ValidationError{
			Field:   ct.Root.Name + ".shape",
			Message: fmt.Sprintf("root field set must be a parent, got %s", ct.Root.Shape),
			Code:    ErrInvalidNesting,
		})
	}

	tables := make(map[string]string)
	for _, fs := range ct.FieldSets() {
		errs = append(errs, validateFieldSet(fs, cols)...)
		errs = append(errs, validateMapping(ct, fs)...)

		if owner, dup := tables[fs.Table]; dup {
			errs = append(errs, ValidationError{
				Field:   fs.Name + ".table",
				Message: fmt.Sprintf("table %q is already used by field set %q", fs.Table, owner),
				Code:    ErrDuplicateName,
			})
		}
		tables[fs.Table] = fs.Name
	}

	used := make(map[string]bool, len(ct.Mappings))
	for _, fs := range ct.FieldSets() {
		used[fs.Mapping] = true
	}
	for _, id := range sortedKeys(ct.Mappings) {
		if !used[id] {
			errs = append(errs, ValidationError{
				Field:   "mappings." + id,
				Message: fmt.Sprintf("mapping %q is not attached to any field set", id),
				Code:    ErrMissingMapping,
			})
		}
	}

	return errs
}

func validateFieldSet(fs *ir.FieldSet, cols ir.SystemColumns) []ValidationError {
	var errs []ValidationError

	if !identPattern.MatchString(fs.Table) {
		errs = append(errs, ValidationError{
			Field:   fs.Name + ".table",
			Message: fmt.Sprintf("table %q is not a valid identifier", fs.Table),
			Code:    ErrInvalidIdentifier,
		})
	}

	if fs.Parent != nil {
		allowed := fs.Parent.Shape == ir.ShapeParent && fs.Shape != ir.ShapeParent ||
			fs.Parent.Shape == ir.ShapeComplexChild && fs.Shape == ir.ShapeSimpleChild
		if !allowed {
			errs = append(errs, ValidationError{
				Field:   fs.Name + ".shape",
				Message: fmt.Sprintf("%s cannot be nested under %s %q", fs.Shape, fs.Parent.Shape, fs.Parent.Name),
				Code:    ErrInvalidNesting,
			})
		}
	}

	switch {
	case len(fs.Fields) == 0:
		errs = append(errs, ValidationError{
			Field:   fs.Name + ".fields",
			Message: "field set declares no fields",
			Code:    ErrEmptyFieldSet,
		})
	case fs.Shape == ir.ShapeSimpleChild && len(fs.Fields) != 1:
		errs = append(errs, ValidationError{
			Field:   fs.Name + ".fields",
			Message: fmt.Sprintf("simple child must own exactly one field, got %d", len(fs.Fields)),
			Code:    ErrSimpleChildFields,
		})
	}

	names := make(map[string]bool)
	columns := make(map[string]bool)
	for _, f := range fs.Fields {
		path := fmt.Sprintf("%s.fields.%s", fs.Name, f.Name)
		if names[f.Name] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate field name: %q", f.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[f.Name] = true

		if !ir.ValidFieldKinds[f.Kind] {
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("invalid kind %q for field %q", f.Kind, f.Name),
				Code:    ErrInvalidFieldKind,
			})
		}
		if f.IsBinary() && fs.Shape == ir.ShapeSimpleChild {
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: "simple child values cannot be binary",
				Code:    ErrBinaryInSimpleChild,
			})
		}

		switch {
		case !identPattern.MatchString(f.Column):
			errs = append(errs, ValidationError{
				Field:   path + ".column",
				Message: fmt.Sprintf("column %q is not a valid identifier", f.Column),
				Code:    ErrInvalidIdentifier,
			})
		case cols.IsSystem(f.Column):
			errs = append(errs, ValidationError{
				Field:   path + ".column",
				Message: fmt.Sprintf("column %q is reserved for bookkeeping", f.Column),
				Code:    ErrReservedColumn,
			})
		case columns[f.Column]:
			errs = append(errs, ValidationError{
				Field:   path + ".column",
				Message: fmt.Sprintf("duplicate column: %q", f.Column),
				Code:    ErrDuplicateName,
			})
		}
		columns[f.Column] = true
	}

	children := make(map[string]bool)
	for _, c := range fs.Children {
		if children[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fs.Name + ".children." + c.Name,
				Message: fmt.Sprintf("duplicate child name: %q", c.Name),
				Code:    ErrDuplicateName,
			})
		}
		children[c.Name] = true
	}

	return errs
}

func validateMapping(ct *ir.ContentType, fs *ir.FieldSet) []ValidationError {
	m, ok := ct.MappingFor(fs)
	if !ok {
		return []ValidationError{{
			Field:   fs.Name + ".mapping",
			Message: fmt.Sprintf("mapping %q is not registered", fs.Mapping),
			Code:    ErrMissingMapping,
		}}
	}

	var errs []ValidationError
	if m.FieldSet != fs.Name {
		errs = append(errs, ValidationError{
			Field:   fs.Name + ".mapping",
			Message: fmt.Sprintf("mapping %q belongs to field set %q", m.ID, m.FieldSet),
			Code:    ErrDuplicateMapping,
		})
	}
	if len(m.Refs) == 0 {
		errs = append(errs, ValidationError{
			Field:   fs.Name + ".mapping",
			Message: fmt.Sprintf("mapping %q references no fields", m.ID),
			Code:    ErrEmptyMapping,
		})
	}

	params := make(map[string]string)
	for _, r := range m.Refs {
		if _, ok := fs.Field(r.Field); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.mapping.%s", fs.Name, r.Field),
				Message: fmt.Sprintf("mapping %q references unknown field %q", m.ID, r.Field),
				Code:    ErrUnknownMappingField,
			})
			continue
		}
		param := m.ParamFor(r.Field)
		if other, dup := params[param]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.mapping.%s", fs.Name, r.Field),
				Message: fmt.Sprintf("fields %q and %q share parameter %q", other, r.Field, param),
				Code:    ErrDuplicateParam,
			})
			continue
		}
		params[param] = r.Field
	}
	return errs
}

// ValidateSet checks rules that span content types: mapping ids and tables
// must be unique across the whole set, since plans are registered by
// mapping id in one registry and share one store.
func ValidateSet(types []*ir.ContentType) []ValidationError {
	var errs []ValidationError

	mappings := make(map[string]string)
	tables := make(map[string]string)
	for _, ct := range types {
		if ct == nil || ct.Root == nil {
			continue
		}
		for _, id := range sortedKeys(ct.Mappings) {
			if owner, dup := mappings[id]; dup && owner != ct.Name {
				errs = append(errs, ValidationError{
					Field:   ct.Name + ".mappings." + id,
					Message: fmt.Sprintf("mapping %q is already defined by content type %q", id, owner),
					Code:    ErrDuplicateMapping,
				})
				continue
			}
			mappings[id] = ct.Name
		}
		for _, fs := range ct.FieldSets() {
			if owner, dup := tables[fs.Table]; dup && owner != ct.Name {
				errs = append(errs, ValidationError{
					Field:   ct.Name + "." + fs.Name + ".table",
					Message: fmt.Sprintf("table %q is already written by content type %q", fs.Table, owner),
					Code:    ErrTableConflict,
				})
				continue
			}
			tables[fs.Table] = ct.Name
		}
	}
	return errs
}
