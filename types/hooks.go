package types

// Hooks defines optional callbacks for session lifecycle events.
//
// All hooks are optional. They are invoked from the task-loop goroutine,
// so they must return quickly; slow or blocking hooks stall the whole
// session (see the concurrency model: the loop has no other work to do
// while a task runs, so a slow hook only delays this session, but it
// still delays the closing deadline's accuracy).
type Hooks struct {
	// OnStateChanged is called after a state transition completes
	// (after the new state's OnEnter has returned).
	OnStateChanged func(from, to string)

	// OnPartitionsFreed is called after freePartitions completes a
	// batch, with the keys that were released and why.
	OnPartitionsFreed func(keys []EventTypePartition, reason string)

	// OnError is called when a task-loop error is converted into a
	// transition to Cleanup.
	OnError func(err error)
}
