// Package engine executes modify requests.
//
// A Request names a display mapping, an operation and its parameters. The
// engine resolves the operation to one or more compiled plans, checks the
// caller and the binary registry, and runs the plans in a single store
// transaction: a failure in any step rolls back every earlier step of the
// request.
//
// Operations:
//
//	insert       INSERT_PLAN
//	delete       TYPE_DELETE_ITEM
//	deleteChild  TYPE_DELETE_COMPLEX_CHILD
//	update       TYPE_UPDATE_PLAN
//	save         TYPE_UPDATE_PLAN or TYPE_DELETE_COMPLEX_CHILD when registered, then INSERT_PLAN
//
// Dispatch:
// Steps dispatch resources by name. A write resource runs each of its
// statements once per row, where the row count is the length of the
// longest parameter list the resource reads. Lists of one value are
// broadcast to every row and rows past the end of a shorter list read
// NULL. Key columns take the submitted key of the row or allocate the next
// value of the table's key sequence.
//
// Every step outcome becomes a change event stamped from a monotonic
// Clock. Committed requests persist their events to the store's change log.
package engine
