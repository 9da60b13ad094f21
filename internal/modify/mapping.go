package modify

import "github.com/roach88/modplan/internal/queryir"

// SystemMapping is one system column to populate: the table, the column and
// where its value comes from. Mappings live only while a plan compiles.
type SystemMapping struct {
	table  string
	column string
	source queryir.Source
}

// NewSystemMapping creates a SystemMapping.
func NewSystemMapping(table, column string, source queryir.Source) SystemMapping {
	return SystemMapping{table: table, column: column, source: source}
}

// Table returns the backend table.
func (m SystemMapping) Table() string { return m.table }

// Column returns the column name.
func (m SystemMapping) Column() string { return m.column }

// Source returns the value source.
func (m SystemMapping) Source() queryir.Source { return m.source }

// columnMapper turns the mappings for one table into statement columns,
// keeping order and dropping repeated columns.
func columnMapper(table string, mappings []SystemMapping) []queryir.Column {
	seen := make(map[string]bool, len(mappings))
	var cols []queryir.Column
	for _, m := range mappings {
		if m.table != table || seen[m.column] {
			continue
		}
		seen[m.column] = true
		cols = append(cols, queryir.Column{Name: m.column, Source: m.source})
	}
	return cols
}
