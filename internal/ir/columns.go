package ir

// SystemColumns names the bookkeeping and key columns every content table
// carries. The same names are used for DDL, plan compilation and revision
// lookups, so they are configured once per deployment.
type SystemColumns struct {
	ContentID      string `yaml:"content_id" json:"content_id"`
	Revision       string `yaml:"revision" json:"revision"`
	EditLock       string `yaml:"edit_lock" json:"edit_lock"`
	LastModified   string `yaml:"last_modified" json:"last_modified"`
	LastModifiedBy string `yaml:"last_modified_by" json:"last_modified_by"`
	ChildID        string `yaml:"child_id" json:"child_id"`
	ParentID       string `yaml:"parent_id" json:"parent_id"`
	RowOrder       string `yaml:"row_order" json:"row_order"`
}

// DefaultSystemColumns returns the column names used when no configuration
// overrides them.
func DefaultSystemColumns() SystemColumns {
	return SystemColumns{
		ContentID:      "content_id",
		Revision:       "revision",
		EditLock:       "edit_lock",
		LastModified:   "last_modified",
		LastModifiedBy: "last_modified_by",
		ChildID:        "child_id",
		ParentID:       "parent_id",
		RowOrder:       "row_order",
	}
}

// Names returns all configured column names in a fixed order.
func (c SystemColumns) Names() []string {
	return []string{
		c.ContentID, c.Revision, c.EditLock, c.LastModified,
		c.LastModifiedBy, c.ChildID, c.ParentID, c.RowOrder,
	}
}

// IsSystem reports whether name is one of the bookkeeping or key columns.
func (c SystemColumns) IsSystem(name string) bool {
	for _, n := range c.Names() {
		if n == name {
			return true
		}
	}
	return false
}
