package modify

import (
	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/queryir"
)

// systemInsertMappings are the bookkeeping columns every parent insert
// writes: the edit lock is cleared and the last-modified pair is stamped.
func (c *PlanCompiler) systemInsertMappings(fs *ir.FieldSet) []SystemMapping {
	return []SystemMapping{
		NewSystemMapping(fs.Table, c.cols.EditLock, queryir.Literal{}),
		NewSystemMapping(fs.Table, c.cols.LastModified, queryir.Now{}),
		NewSystemMapping(fs.Table, c.cols.LastModifiedBy, queryir.Editor{}),
	}
}

// systemUpdateMappings are the root columns a child mutation touches. The
// revision is left alone so one save can combine child deletes and inserts
// under a single presented revision.
func (c *PlanCompiler) systemUpdateMappings(root *ir.FieldSet) []SystemMapping {
	return []SystemMapping{
		NewSystemMapping(root.Table, c.cols.LastModified, queryir.Now{}),
		NewSystemMapping(root.Table, c.cols.LastModifiedBy, queryir.Editor{}),
	}
}

func (c *PlanCompiler) systemDeleteMappings(fs *ir.FieldSet) []SystemMapping {
	return []SystemMapping{
		NewSystemMapping(fs.Table, c.cols.ContentID, queryir.Param{Name: c.params.ContentID}),
	}
}

// addTableKeys puts the key columns for fs's shape in front of mappings.
//
//	parent:  content id, plus revision on insert
//	child:   content id, parent id, plus row order on insert
//	complex: child id first; generated on insert unless submitted
//
// On insert the content id of a parent and the child id of a complex child
// come from a key generator that honours a submitted value.
func (c *PlanCompiler) addTableKeys(fs *ir.FieldSet, mode dataset.Mode, mappings []SystemMapping) []SystemMapping {
	t := fs.Table
	contentID := queryir.Param{Name: c.params.ContentID}
	insert := mode == dataset.ModeInsert

	var keys []SystemMapping
	switch fs.Shape {
	case ir.ShapeParent:
		if insert {
			keys = append(keys,
				NewSystemMapping(t, c.cols.ContentID, queryir.KeyGen{Sequence: t, Param: c.params.ContentID}),
				NewSystemMapping(t, c.cols.Revision, queryir.Revision{Param: c.params.Revision, Delta: 1}),
			)
		} else {
			keys = append(keys, NewSystemMapping(t, c.cols.ContentID, contentID))
		}
	default:
		if fs.Shape == ir.ShapeComplexChild {
			var childID queryir.Source = queryir.Param{Name: c.params.ChildID}
			if insert {
				childID = queryir.KeyGen{Sequence: t, Param: c.params.ChildID}
			}
			keys = append(keys, NewSystemMapping(t, c.cols.ChildID, childID))
		}
		keys = append(keys,
			NewSystemMapping(t, c.cols.ContentID, contentID),
			NewSystemMapping(t, c.cols.ParentID, c.parentSource(fs)),
		)
		if insert {
			keys = append(keys, NewSystemMapping(t, c.cols.RowOrder, queryir.RowOrder{}))
		}
	}
	return append(keys, mappings...)
}

// parentSource is where a child row's parent id comes from: the content id
// for top-level children, the owning complex child's id otherwise.
func (c *PlanCompiler) parentSource(fs *ir.FieldSet) queryir.Source {
	if fs.Parent == nil || fs.Parent.Shape == ir.ShapeParent {
		return queryir.Param{Name: c.params.ContentID}
	}
	return queryir.Param{Name: c.params.ParentID}
}
