package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/modplan/internal/ir"
)

// CompileContentType parses a CUE value into a ContentType.
//
// The CUE value should be the content type struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`contentType: article: { mapping: 7, fields: title: "text" }`)
//	ct, err := CompileContentType(v.LookupPath(cue.ParsePath("contentType.article")))
//
// The struct label names the type and its root field set. Tables default to
// the type name for the root and to "<parent table>_<child name>" for
// children; columns default to the field name. Structural rules such as
// nesting limits are checked by Validate, not here.
func CompileContentType(v cue.Value) (*ir.ContentType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name := labelOf(v)
	ct := &ir.ContentType{
		Name:     name,
		Mappings: make(map[string]*ir.DisplayMapping),
	}

	root, err := compileFieldSet(v, name, "", ir.ShapeParent, ct.Mappings)
	if err != nil {
		return nil, err
	}
	root.Link()
	ct.Root = root
	return ct, nil
}

// compileFieldSet parses one field set and its children. parentTable is
// empty for the root.
func compileFieldSet(v cue.Value, name, parentTable string, defaultShape ir.Shape, mappings map[string]*ir.DisplayMapping) (*ir.FieldSet, error) {
	fs := &ir.FieldSet{Name: name, Shape: defaultShape}

	shapeVal := v.LookupPath(cue.ParsePath("shape"))
	if shapeVal.Exists() {
		s, err := shapeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		shape, err := ir.ParseShape(s)
		if err != nil {
			return nil, &CompileError{Field: name + ".shape", Message: err.Error(), Pos: shapeVal.Pos()}
		}
		fs.Shape = shape
	} else if parentTable != "" {
		return nil, &CompileError{
			Field:   name + ".shape",
			Message: "child field sets must declare shape \"simple\" or \"complex\"",
			Pos:     v.Pos(),
		}
	}

	table, err := optionalString(v, "table")
	if err != nil {
		return nil, err
	}
	switch {
	case table != "":
		fs.Table = table
	case parentTable == "":
		fs.Table = name
	default:
		fs.Table = parentTable + "_" + name
	}

	labels, err := parseFields(v, fs)
	if err != nil {
		return nil, err
	}

	m, err := parseMapping(v, fs, labels)
	if err != nil {
		return nil, err
	}
	if _, dup := mappings[m.ID]; dup {
		return nil, &CompileError{
			Field:   name + ".mapping",
			Message: fmt.Sprintf("mapping %q is already used by field set %q", m.ID, mappings[m.ID].FieldSet),
			Pos:     v.LookupPath(cue.ParsePath("mapping")).Pos(),
		}
	}
	mappings[m.ID] = m
	fs.Mapping = m.ID

	childrenVal := v.LookupPath(cue.ParsePath("children"))
	if !childrenVal.Exists() {
		return fs, nil
	}
	iter, err := childrenVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		child, err := compileFieldSet(iter.Value(), iter.Label(), fs.Table, ir.ShapeComplexChild, mappings)
		if err != nil {
			return nil, err
		}
		fs.Children = append(fs.Children, child)
	}
	return fs, nil
}

// fieldAttrs holds the mapping attributes declared next to a field.
type fieldAttrs struct {
	param string
	label string
}

// parseFields reads the fields of a field set in declaration order. A field
// is either a kind string or a struct with kind, column, param and label.
func parseFields(v cue.Value, fs *ir.FieldSet) (map[string]fieldAttrs, error) {
	attrs := make(map[string]fieldAttrs)

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return attrs, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		fieldName := iter.Label()
		fv := iter.Value()
		f := ir.Field{Name: fieldName, Column: fieldName}

		if kind, err := fv.String(); err == nil {
			f.Kind = ir.FieldKind(kind)
			fs.Fields = append(fs.Fields, f)
			continue
		}
		if fv.IncompleteKind() != cue.StructKind {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.fields.%s", fs.Name, fieldName),
				Message: "field must be a kind string or a struct with kind",
				Pos:     fv.Pos(),
			}
		}

		kindVal := fv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.fields.%s.kind", fs.Name, fieldName),
				Message: "field kind is required",
				Pos:     fv.Pos(),
			}
		}
		kind, err := kindVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		f.Kind = ir.FieldKind(kind)

		if col, err := optionalString(fv, "column"); err != nil {
			return nil, err
		} else if col != "" {
			f.Column = col
		}

		var a fieldAttrs
		if a.param, err = optionalString(fv, "param"); err != nil {
			return nil, err
		}
		if a.label, err = optionalString(fv, "label"); err != nil {
			return nil, err
		}
		attrs[fieldName] = a
		fs.Fields = append(fs.Fields, f)
	}
	return attrs, nil
}

// parseMapping reads the display mapping of a field set. The mapping is
// either a bare id, which references every field in declaration order, or
// a struct {id, fields} listing the referenced fields.
func parseMapping(v cue.Value, fs *ir.FieldSet, attrs map[string]fieldAttrs) (*ir.DisplayMapping, error) {
	mv := v.LookupPath(cue.ParsePath("mapping"))
	if !mv.Exists() {
		return nil, &CompileError{
			Field:   fs.Name + ".mapping",
			Message: "mapping id is required",
			Pos:     v.Pos(),
		}
	}

	idVal := mv
	if mv.IncompleteKind() == cue.StructKind {
		idVal = mv.LookupPath(cue.ParsePath("id"))
		if !idVal.Exists() {
			return nil, &CompileError{Field: fs.Name + ".mapping.id", Message: "mapping id is required", Pos: mv.Pos()}
		}
	}
	id, err := mappingID(idVal)
	if err != nil {
		return nil, &CompileError{Field: fs.Name + ".mapping", Message: err.Error(), Pos: idVal.Pos()}
	}

	m := &ir.DisplayMapping{ID: id, FieldSet: fs.Name}
	ref := func(field string) ir.FieldRef {
		a := attrs[field]
		return ir.FieldRef{Field: field, Param: a.param, Label: a.label}
	}

	listVal := mv.LookupPath(cue.ParsePath("fields"))
	if mv.IncompleteKind() != cue.StructKind || !listVal.Exists() {
		for _, f := range fs.Fields {
			m.Refs = append(m.Refs, ref(f.Name))
		}
		return m, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		field, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m.Refs = append(m.Refs, ref(field))
	}
	return m, nil
}

// mappingID accepts string and integer ids.
func mappingID(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return "", fmt.Errorf("mapping id must be a string or int, got %v", v.IncompleteKind())
	}
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func labelOf(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].String()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
