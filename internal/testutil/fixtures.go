package testutil

import "github.com/roach88/modplan/internal/ir"

// ArticleType builds the content type most tests share:
//
//	article (parent, mapping 7): title, image (binary, param img), attachment (binary)
//	  tags (simple, mapping 3): tag
//	  sections (complex, mapping 5): heading, body
//	    notes (simple, mapping 9): note
func ArticleType() *ir.ContentType {
	notes := &ir.FieldSet{
		Name: "notes", Shape: ir.ShapeSimpleChild, Table: "article_section_notes", Mapping: "9",
		Fields: []ir.Field{{Name: "note", Column: "note", Kind: ir.KindText}},
	}
	sections := &ir.FieldSet{
		Name: "sections", Shape: ir.ShapeComplexChild, Table: "article_sections", Mapping: "5",
		Fields: []ir.Field{
			{Name: "heading", Column: "heading", Kind: ir.KindText},
			{Name: "body", Column: "body", Kind: ir.KindText},
		},
		Children: []*ir.FieldSet{notes},
	}
	tags := &ir.FieldSet{
		Name: "tags", Shape: ir.ShapeSimpleChild, Table: "article_tags", Mapping: "3",
		Fields: []ir.Field{{Name: "tag", Column: "tag", Kind: ir.KindText}},
	}
	root := &ir.FieldSet{
		Name: "article", Shape: ir.ShapeParent, Table: "article", Mapping: "7",
		Fields: []ir.Field{
			{Name: "title", Column: "title", Kind: ir.KindText},
			{Name: "image", Column: "image", Kind: ir.KindBinary},
			{Name: "attachment", Column: "attachment", Kind: ir.KindBinary},
		},
		Children: []*ir.FieldSet{tags, sections},
	}
	root.Link()

	return &ir.ContentType{
		Name: "article",
		Root: root,
		Mappings: map[string]*ir.DisplayMapping{
			"7": {ID: "7", FieldSet: "article", Refs: []ir.FieldRef{
				{Field: "title", Label: "Title"},
				{Field: "image", Param: "img", Label: "Image"},
				{Field: "attachment", Label: "Attachment"},
			}},
			"3": {ID: "3", FieldSet: "tags", Refs: []ir.FieldRef{{Field: "tag", Label: "Tag"}}},
			"5": {ID: "5", FieldSet: "sections", Refs: []ir.FieldRef{
				{Field: "heading", Label: "Heading"},
				{Field: "body", Label: "Body"},
			}},
			"9": {ID: "9", FieldSet: "notes", Refs: []ir.FieldRef{{Field: "note", Label: "Note"}}},
		},
	}
}

// FlatSectionsType is ArticleType without nested notes, so the sections
// child is eligible for multi-row inserts. Mapping ids are offset by 100.
func FlatSectionsType() *ir.ContentType {
	sections := &ir.FieldSet{
		Name: "sections", Shape: ir.ShapeComplexChild, Table: "memo_sections", Mapping: "105",
		Fields: []ir.Field{
			{Name: "heading", Column: "heading", Kind: ir.KindText},
			{Name: "body", Column: "body", Kind: ir.KindText},
		},
	}
	root := &ir.FieldSet{
		Name: "memo", Shape: ir.ShapeParent, Table: "memo", Mapping: "107",
		Fields:   []ir.Field{{Name: "title", Column: "title", Kind: ir.KindText}},
		Children: []*ir.FieldSet{sections},
	}
	root.Link()

	return &ir.ContentType{
		Name: "memo",
		Root: root,
		Mappings: map[string]*ir.DisplayMapping{
			"107": {ID: "107", FieldSet: "memo", Refs: []ir.FieldRef{{Field: "title"}}},
			"105": {ID: "105", FieldSet: "sections", Refs: []ir.FieldRef{{Field: "heading"}, {Field: "body"}}},
		},
	}
}
