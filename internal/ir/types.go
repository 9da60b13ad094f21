package ir

import "fmt"

// Shape is the structural role of a field set inside a content record.
type Shape int

const (
	// ShapeParent is the root record row.
	ShapeParent Shape = iota
	// ShapeSimpleChild holds one value column; every submitted value becomes a row.
	ShapeSimpleChild
	// ShapeComplexChild holds several columns; every child entry becomes a row.
	ShapeComplexChild
)

// String returns the canonical upper-case shape name.
func (s Shape) String() string {
	switch s {
	case ShapeParent:
		return "PARENT"
	case ShapeSimpleChild:
		return "SIMPLE_CHILD"
	case ShapeComplexChild:
		return "COMPLEX_CHILD"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape converts a definition keyword ("parent", "simple", "complex") to a Shape.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "parent", "PARENT":
		return ShapeParent, nil
	case "simple", "SIMPLE_CHILD":
		return ShapeSimpleChild, nil
	case "complex", "COMPLEX_CHILD":
		return ShapeComplexChild, nil
	default:
		return 0, fmt.Errorf("unknown shape %q", s)
	}
}

// FieldKind is the storage kind of a field column.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindInt    FieldKind = "int"
	KindBool   FieldKind = "bool"
	KindDate   FieldKind = "date"
	KindBinary FieldKind = "binary"
)

// ValidFieldKinds defines allowed field kinds.
var ValidFieldKinds = map[FieldKind]bool{
	KindText:   true,
	KindInt:    true,
	KindBool:   true,
	KindDate:   true,
	KindBinary: true,
}

// Field describes one stored column of a field set.
type Field struct {
	Name   string    `json:"name"`
	Column string    `json:"column"`
	Kind   FieldKind `json:"kind"`
}

// IsBinary reports whether the field cannot be partially updated.
func (f Field) IsBinary() bool {
	return f.Kind == KindBinary
}

// FieldSet describes one structural piece of a content record.
//
// Fields and Children keep declaration order. Parent is set by Link and is
// nil for the root field set.
type FieldSet struct {
	Name     string      `json:"name"`
	Shape    Shape       `json:"shape"`
	Table    string      `json:"table"`
	Mapping  string      `json:"mapping"`
	Fields   []Field     `json:"fields"`
	Children []*FieldSet `json:"children,omitempty"`
	Parent   *FieldSet   `json:"-"`
}

// Field returns the field descriptor with the given name.
func (fs *FieldSet) Field(name string) (Field, bool) {
	for _, f := range fs.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Child returns the nested field set with the given name.
func (fs *FieldSet) Child(name string) (*FieldSet, bool) {
	for _, c := range fs.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Value returns the value field of a simple child. Simple children own
// exactly one field; ok is false for any other shape.
func (fs *FieldSet) Value() (Field, bool) {
	if fs.Shape != ShapeSimpleChild || len(fs.Fields) != 1 {
		return Field{}, false
	}
	return fs.Fields[0], true
}

// BinaryFields returns the binary fields in declaration order.
func (fs *FieldSet) BinaryFields() []Field {
	var out []Field
	for _, f := range fs.Fields {
		if f.IsBinary() {
			out = append(out, f)
		}
	}
	return out
}

// HasNestedSimpleChild reports whether any direct child is a simple child.
// Inspected at compile time to decide multi-row eligibility.
func (fs *FieldSet) HasNestedSimpleChild() bool {
	for _, c := range fs.Children {
		if c.Shape == ShapeSimpleChild {
			return true
		}
	}
	return false
}

// Root walks Parent links up to the root field set.
func (fs *FieldSet) Root() *FieldSet {
	cur := fs
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Descendants returns all nested field sets, deepest first, in reverse
// declaration order. Deletes run in this order so dependent rows go first.
func (fs *FieldSet) Descendants() []*FieldSet {
	var out []*FieldSet
	for i := len(fs.Children) - 1; i >= 0; i-- {
		c := fs.Children[i]
		out = append(out, c.Descendants()...)
		out = append(out, c)
	}
	return out
}

// Link sets Parent pointers on the whole tree rooted at fs.
func (fs *FieldSet) Link() {
	for _, c := range fs.Children {
		c.Parent = fs
		c.Link()
	}
}

// FieldRef binds a field to a request parameter.
type FieldRef struct {
	Field string `json:"field"`
	Param string `json:"param,omitempty"`
	Label string `json:"label,omitempty"`
}

// DisplayMapping is the ordered list of fields that take part in a mutation.
type DisplayMapping struct {
	ID       string     `json:"id"`
	FieldSet string     `json:"field_set"`
	Refs     []FieldRef `json:"refs"`
}

// GetID returns the mapping id used in generated resource names.
func (m *DisplayMapping) GetID() string {
	return m.ID
}

// Includes reports whether the field takes part in the mapping.
func (m *DisplayMapping) Includes(field string) bool {
	_, ok := m.ref(field)
	return ok
}

// ParamFor returns the request parameter carrying the field's value.
// Unreferenced fields and refs without an explicit param use the field name.
func (m *DisplayMapping) ParamFor(field string) string {
	if ref, ok := m.ref(field); ok && ref.Param != "" {
		return ref.Param
	}
	return field
}

func (m *DisplayMapping) ref(field string) (FieldRef, bool) {
	for _, r := range m.Refs {
		if r.Field == field {
			return r, true
		}
	}
	return FieldRef{}, false
}

// MappedFields returns the field set's fields that the mapping references,
// in mapping order.
func (m *DisplayMapping) MappedFields(fs *FieldSet) []Field {
	out := make([]Field, 0, len(m.Refs))
	for _, r := range m.Refs {
		if f, ok := fs.Field(r.Field); ok {
			out = append(out, f)
		}
	}
	return out
}

// ContentType is a compiled content definition: a field set tree plus the
// display mappings for every field set in it.
type ContentType struct {
	Name     string                     `json:"name"`
	Root     *FieldSet                  `json:"root"`
	Mappings map[string]*DisplayMapping `json:"mappings"`
}

// FieldSets returns every field set of the tree, root first, depth-first in
// declaration order.
func (ct *ContentType) FieldSets() []*FieldSet {
	var out []*FieldSet
	var walk func(fs *FieldSet)
	walk = func(fs *FieldSet) {
		out = append(out, fs)
		for _, c := range fs.Children {
			walk(c)
		}
	}
	if ct.Root != nil {
		walk(ct.Root)
	}
	return out
}

// MappingFor returns the display mapping of a field set.
func (ct *ContentType) MappingFor(fs *FieldSet) (*DisplayMapping, bool) {
	m, ok := ct.Mappings[fs.Mapping]
	return m, ok
}
