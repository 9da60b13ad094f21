package modify

// StepOutcome is what one step did: the resource it dispatched, the
// discriminator value it forced, and the rows it affected. Skipped steps
// dispatch nothing.
type StepOutcome struct {
	Resource string
	Mode     string
	Skipped  bool
	Rows     int64
}

// ChangeEvent is a StepOutcome placed in request order under the plan that
// produced it. A failed event names the resource of the failing step, when
// known, and is never persisted.
type ChangeEvent struct {
	Seq      int64
	PlanType PlanType
	StepOutcome
	Failed bool
}
