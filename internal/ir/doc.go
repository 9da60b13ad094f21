// Package ir provides the record-shape metadata consumed by the plan compiler.
//
// This package contains type definitions and canonical serialization only. All
// other internal packages import ir; ir imports nothing internal, so field set
// metadata stays the foundational layer with no circular dependencies.
//
// A content type is a tree of field sets. The root is always a PARENT field set;
// its children are SIMPLE_CHILD (one value column, one row per value) or
// COMPLEX_CHILD (several columns, one row per child entry) field sets. A complex
// child may itself own simple children. Each field set is paired with a display
// mapping whose id names the backend resources generated for it.
//
// Key design constraints:
//   - Field sets and mappings are immutable once a definition is compiled
//   - Field and child order is declaration order and is preserved everywhere
//   - All JSON tags use snake_case
package ir
