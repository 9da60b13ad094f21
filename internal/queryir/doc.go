// Package queryir provides the mutation intermediate representation (IR)
// that plan builders emit and backend compilers consume.
//
// A column mapper is a list of Columns, each naming a backend column and the
// Source its value comes from at request time. Statements combine a table with
// column mappers:
//
//	[field set + display mapping + system mappings] → [mutation IR] → [SQL per dialect]
//
// SEALED INTERFACES:
//
// Statement and Source are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so backend compilers and the
// request dispatcher can switch exhaustively:
//
//	switch s := stmt.(type) {
//	case *Insert:
//	case *Update:
//	case *Delete:
//	case *SelectRevision:
//	}
//
// ROW ALIGNMENT:
//
// A statement runs once per aligned row of request parameters. Param sources
// with a single value are broadcast to every row; list-valued params supply
// the value at the row index. KeyGen sources allocate a fresh key for every
// row that has no submitted key. RowOrder yields the row index.
//
// Values are never interpolated into SQL. Every Source becomes a placeholder.
package queryir
