package queryir

import "fmt"

// Statement is one backend mutation or lookup.
type Statement interface {
	statementNode()
	// TableName returns the table the statement targets.
	TableName() string
}

// Source produces a column value at request time.
type Source interface {
	sourceNode()
	fmt.Stringer
}

// Column binds a backend column to a value source.
type Column struct {
	Name   string
	Source Source
}

// Insert adds one row per aligned parameter row.
//
// When ConflictKeys is non-empty the insert is an upsert: a row whose keys
// already exist has every non-key column replaced.
type Insert struct {
	Table        string
	Columns      []Column
	ConflictKeys []string
}

func (Insert) statementNode()      {}
func (s Insert) TableName() string { return s.Table }

// Update changes the Set columns of rows matching every Where column.
type Update struct {
	Table string
	Set   []Column
	Where []Column
}

func (Update) statementNode()      {}
func (s Update) TableName() string { return s.Table }

// Delete removes rows matching every Where column.
type Delete struct {
	Table string
	Where []Column
}

func (Delete) statementNode()      {}
func (s Delete) TableName() string { return s.Table }

// SelectRevision reads the current revision column of the row matching
// every Where column. A missing row reads as revision 0.
type SelectRevision struct {
	Table    string
	Revision string
	Where    []Column
}

func (SelectRevision) statementNode()      {}
func (s SelectRevision) TableName() string { return s.Table }

// Param reads a request parameter.
type Param struct {
	Name string
}

func (Param) sourceNode()      {}
func (s Param) String() string { return "param:" + s.Name }

// Revision reads the presented revision parameter and adds Delta.
// An absent revision parameter reads as 0.
type Revision struct {
	Param string
	Delta int64
}

func (Revision) sourceNode() {}
func (s Revision) String() string {
	return fmt.Sprintf("revision:%s%+d", s.Param, s.Delta)
}

// Now yields the request timestamp.
type Now struct{}

func (Now) sourceNode()    {}
func (Now) String() string { return "now" }

// Editor yields the authenticated user of the request.
type Editor struct{}

func (Editor) sourceNode()    {}
func (Editor) String() string { return "editor" }

// KeyGen allocates a fresh key from Sequence for every row without a
// submitted key. When Param is set, a submitted value at the row index is
// used instead of allocating.
type KeyGen struct {
	Sequence string
	Param    string
}

func (KeyGen) sourceNode() {}
func (s KeyGen) String() string {
	if s.Param != "" {
		return fmt.Sprintf("keygen:%s|param:%s", s.Sequence, s.Param)
	}
	return "keygen:" + s.Sequence
}

// RowOrder yields the zero-based index of the row being written.
type RowOrder struct{}

func (RowOrder) sourceNode()    {}
func (RowOrder) String() string { return "row_order" }

// Literal yields a fixed value. A nil Value writes NULL.
type Literal struct {
	Value any
}

func (Literal) sourceNode() {}
func (s Literal) String() string {
	if s.Value == nil {
		return "null"
	}
	return fmt.Sprintf("literal:%v", s.Value)
}

// Sources returns every source referenced by a statement, in column order.
func Sources(stmt Statement) []Source {
	var cols []Column
	switch s := stmt.(type) {
	case *Insert:
		cols = s.Columns
	case *Update:
		cols = append(append(cols, s.Set...), s.Where...)
	case *Delete:
		cols = s.Where
	case *SelectRevision:
		cols = s.Where
	}
	out := make([]Source, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Source)
	}
	return out
}

// ParamNames returns the request parameters a statement reads, in column
// order without duplicates.
func ParamNames(stmt Statement) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, src := range Sources(stmt) {
		switch s := src.(type) {
		case Param:
			add(s.Name)
		case Revision:
			add(s.Param)
		case KeyGen:
			add(s.Param)
		}
	}
	return out
}
