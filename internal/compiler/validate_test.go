package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/testutil"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

// single builds a content type of one parent field set with the given
// fields, registered under mapping "1".
func single(fields ...ir.Field) *ir.ContentType {
	root := &ir.FieldSet{Name: "doc", Shape: ir.ShapeParent, Table: "doc", Mapping: "1", Fields: fields}
	refs := make([]ir.FieldRef, len(fields))
	for i, f := range fields {
		refs[i] = ir.FieldRef{Field: f.Name}
	}
	return &ir.ContentType{
		Name:     "doc",
		Root:     root,
		Mappings: map[string]*ir.DisplayMapping{"1": {ID: "1", FieldSet: "doc", Refs: refs}},
	}
}

// withChild attaches a child field set under parent with its own mapping.
func withChild(ct *ir.ContentType, parent *ir.FieldSet, child *ir.FieldSet) *ir.FieldSet {
	parent.Children = append(parent.Children, child)
	refs := make([]ir.FieldRef, len(child.Fields))
	for i, f := range child.Fields {
		refs[i] = ir.FieldRef{Field: f.Name}
	}
	ct.Mappings[child.Mapping] = &ir.DisplayMapping{ID: child.Mapping, FieldSet: child.Name, Refs: refs}
	ct.Root.Link()
	return child
}

func text(name string) ir.Field {
	return ir.Field{Name: name, Column: name, Kind: ir.KindText}
}

// =============================================================================
// Content type validation
// =============================================================================

func TestValidateFixtures(t *testing.T) {
	cols := ir.DefaultSystemColumns()
	assert.Empty(t, Validate(testutil.ArticleType(), cols))
	assert.Empty(t, Validate(testutil.FlatSectionsType(), cols))
	assert.Empty(t, ValidateSet([]*ir.ContentType{testutil.ArticleType(), testutil.FlatSectionsType()}))
}

func TestValidateMissingRoot(t *testing.T) {
	errs := Validate(&ir.ContentType{Name: "x"}, ir.DefaultSystemColumns())
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingRoot, errs[0].Code)

	assert.Equal(t, []string{ErrMissingRoot}, codes(Validate(nil, ir.DefaultSystemColumns())))
}

func TestValidateNesting(t *testing.T) {
	tests := []struct {
		name  string
		build func() *ir.ContentType
		ok    bool
	}{
		{
			name: "parent holds simple and complex",
			build: func() *ir.ContentType {
				ct := single(text("a"))
				withChild(ct, ct.Root, &ir.FieldSet{Name: "s", Shape: ir.ShapeSimpleChild, Table: "s", Mapping: "2", Fields: []ir.Field{text("v")}})
				withChild(ct, ct.Root, &ir.FieldSet{Name: "c", Shape: ir.ShapeComplexChild, Table: "c", Mapping: "3", Fields: []ir.Field{text("v")}})
				return ct
			},
			ok: true,
		},
		{
			name: "complex holds simple",
			build: func() *ir.ContentType {
				ct := single(text("a"))
				c := withChild(ct, ct.Root, &ir.FieldSet{Name: "c", Shape: ir.ShapeComplexChild, Table: "c", Mapping: "2", Fields: []ir.Field{text("v")}})
				withChild(ct, c, &ir.FieldSet{Name: "s", Shape: ir.ShapeSimpleChild, Table: "s", Mapping: "3", Fields: []ir.Field{text("v")}})
				return ct
			},
			ok: true,
		},
		{
			name: "complex under complex",
			build: func() *ir.ContentType {
				ct := single(text("a"))
				c := withChild(ct, ct.Root, &ir.FieldSet{Name: "c", Shape: ir.ShapeComplexChild, Table: "c", Mapping: "2", Fields: []ir.Field{text("v")}})
				withChild(ct, c, &ir.FieldSet{Name: "d", Shape: ir.ShapeComplexChild, Table: "d", Mapping: "3", Fields: []ir.Field{text("v")}})
				return ct
			},
		},
		{
			name: "anything under simple",
			build: func() *ir.ContentType {
				ct := single(text("a"))
				s := withChild(ct, ct.Root, &ir.FieldSet{Name: "s", Shape: ir.ShapeSimpleChild, Table: "s", Mapping: "2", Fields: []ir.Field{text("v")}})
				withChild(ct, s, &ir.FieldSet{Name: "t", Shape: ir.ShapeSimpleChild, Table: "t", Mapping: "3", Fields: []ir.Field{text("v")}})
				return ct
			},
		},
		{
			name: "parent nested",
			build: func() *ir.ContentType {
				ct := single(text("a"))
				withChild(ct, ct.Root, &ir.FieldSet{Name: "p", Shape: ir.ShapeParent, Table: "p", Mapping: "2", Fields: []ir.Field{text("v")}})
				return ct
			},
		},
		{
			name: "root not a parent",
			build: func() *ir.ContentType {
				ct := single(text("a"))
				ct.Root.Shape = ir.ShapeComplexChild
				return ct
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.build(), ir.DefaultSystemColumns())
			if tt.ok {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, []string{ErrInvalidNesting}, codes(errs))
		})
	}
}

func TestValidateSimpleChildFields(t *testing.T) {
	ct := single(text("a"))
	withChild(ct, ct.Root, &ir.FieldSet{
		Name: "s", Shape: ir.ShapeSimpleChild, Table: "s", Mapping: "2",
		Fields: []ir.Field{text("v"), text("w")},
	})
	assert.Equal(t, []string{ErrSimpleChildFields}, codes(Validate(ct, ir.DefaultSystemColumns())))

	ct = single(text("a"))
	withChild(ct, ct.Root, &ir.FieldSet{
		Name: "s", Shape: ir.ShapeSimpleChild, Table: "s", Mapping: "2",
		Fields: []ir.Field{{Name: "v", Column: "v", Kind: ir.KindBinary}},
	})
	assert.Equal(t, []string{ErrBinaryInSimpleChild}, codes(Validate(ct, ir.DefaultSystemColumns())))
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []ir.Field
		want   []string
	}{
		{"no fields", nil, []string{ErrEmptyFieldSet, ErrEmptyMapping}},
		{"bad kind", []ir.Field{{Name: "a", Column: "a", Kind: "float"}}, []string{ErrInvalidFieldKind}},
		{"bad column", []ir.Field{{Name: "a", Column: "a-b", Kind: ir.KindText}}, []string{ErrInvalidIdentifier}},
		{"system column", []ir.Field{{Name: "rev", Column: "revision", Kind: ir.KindInt}}, []string{ErrReservedColumn}},
		{"duplicate column", []ir.Field{text("a"), {Name: "b", Column: "a", Kind: ir.KindText}}, []string{ErrDuplicateName}},
		{"duplicate name", []ir.Field{text("a"), {Name: "a", Column: "b", Kind: ir.KindText}}, []string{ErrDuplicateName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := single(tt.fields...)
			// Duplicate field names would also collide in the mapping.
			if tt.name == "duplicate name" {
				ct.Mappings["1"].Refs = ct.Mappings["1"].Refs[:1]
			}
			assert.Equal(t, tt.want, codes(Validate(ct, ir.DefaultSystemColumns())))
		})
	}
}

func TestValidateTables(t *testing.T) {
	ct := single(text("a"))
	ct.Root.Table = "1doc"
	assert.Equal(t, []string{ErrInvalidIdentifier}, codes(Validate(ct, ir.DefaultSystemColumns())))

	ct = single(text("a"))
	withChild(ct, ct.Root, &ir.FieldSet{Name: "s", Shape: ir.ShapeSimpleChild, Table: "doc", Mapping: "2", Fields: []ir.Field{text("v")}})
	assert.Equal(t, []string{ErrDuplicateName}, codes(Validate(ct, ir.DefaultSystemColumns())))
}

func TestValidateCustomSystemColumns(t *testing.T) {
	cols := ir.DefaultSystemColumns()
	cols.Revision = "rev"

	ct := single(ir.Field{Name: "revision", Column: "revision", Kind: ir.KindInt})
	assert.Empty(t, Validate(ct, cols), "only configured names are reserved")

	ct = single(ir.Field{Name: "rev", Column: "rev", Kind: ir.KindInt})
	assert.Equal(t, []string{ErrReservedColumn}, codes(Validate(ct, cols)))
}

// =============================================================================
// Display mapping validation
// =============================================================================

func TestValidateMappings(t *testing.T) {
	t.Run("unregistered", func(t *testing.T) {
		ct := single(text("a"))
		ct.Root.Mapping = "9"
		assert.Equal(t, []string{ErrMissingMapping, ErrMissingMapping}, codes(Validate(ct, ir.DefaultSystemColumns())),
			"the field set's id is unknown and mapping 1 is orphaned")
	})

	t.Run("unknown field", func(t *testing.T) {
		ct := single(text("a"))
		ct.Mappings["1"].Refs = append(ct.Mappings["1"].Refs, ir.FieldRef{Field: "zzz"})
		assert.Equal(t, []string{ErrUnknownMappingField}, codes(Validate(ct, ir.DefaultSystemColumns())))
	})

	t.Run("shared param", func(t *testing.T) {
		ct := single(text("a"), text("b"))
		ct.Mappings["1"].Refs[1].Param = "a"
		errs := Validate(ct, ir.DefaultSystemColumns())
		assert.Equal(t, []string{ErrDuplicateParam}, codes(errs))
		assert.Contains(t, errs[0].Message, `share parameter "a"`)
	})

	t.Run("foreign field set", func(t *testing.T) {
		ct := single(text("a"))
		ct.Mappings["1"].FieldSet = "other"
		assert.Equal(t, []string{ErrDuplicateMapping}, codes(Validate(ct, ir.DefaultSystemColumns())))
	})

	t.Run("empty", func(t *testing.T) {
		ct := single(text("a"))
		ct.Mappings["1"].Refs = nil
		assert.Equal(t, []string{ErrEmptyMapping}, codes(Validate(ct, ir.DefaultSystemColumns())))
	})
}

// =============================================================================
// Cross-type validation
// =============================================================================

func TestValidateSet(t *testing.T) {
	a := single(text("a"))
	b := single(text("b"))
	b.Name = "other"

	errs := ValidateSet([]*ir.ContentType{a, b})
	assert.Equal(t, []string{ErrDuplicateMapping, ErrTableConflict}, codes(errs))

	b.Root.Table = "other"
	b.Root.Mapping = "2"
	b.Mappings = map[string]*ir.DisplayMapping{"2": {ID: "2", FieldSet: "doc", Refs: []ir.FieldRef{{Field: "b"}}}}
	assert.Empty(t, ValidateSet([]*ir.ContentType{a, b, nil}))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "doc.fields.a", Message: "bad", Code: ErrInvalidFieldKind}
	assert.Equal(t, "[E104] doc.fields.a: bad", e.Error())

	e.Line = 4
	assert.Equal(t, "[E104] line 4: doc.fields.a: bad", e.Error())
}
