// Package modify compiles field sets into modify plans and executes them.
//
// A plan is an ordered, immutable list of steps for one mutation of one
// record shape. Plans are compiled once per display mapping by the six
// builder arms (see BuilderKind) and registered in a PlanSet, at most one
// per PlanType. At request time the caller resolves a plan type from the
// requested operation, fetches the plan and executes it against an
// ExecutionContext.
//
// # Steps
//
//   - UpdateStep dispatches one insert, update or delete resource and owns
//     the multi-row parameter policy.
//   - ConditionalStep gates a step on request data.
//   - RevisionStep rejects stale edits before any mutation runs.
//
// # Concurrency
//
// Compilation is single-threaded. Compiled plans, plan sets and registries
// are never mutated afterwards and are safe for concurrent readers. A plan
// executes its steps sequentially on the caller's goroutine; the first
// failure stops it.
package modify
