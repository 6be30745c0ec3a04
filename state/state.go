// Package state implements the session lifecycle's polymorphic State
// unit and its concrete variants: Starting, Streaming, Cleanup, Dead,
// and Closing, the deadline-bounded partition handoff protocol.
//
// Every concrete state holds a non-owning Coordinator reference,
// installed via SetContext: states never own the coordinator, they
// borrow it, which keeps this package free of any import-cycle back to
// the root package that actually implements Coordinator.
package state

import (
	"context"
	"time"

	"github.com/arloliu/nakasess/coordination"
	"github.com/arloliu/nakasess/types"
)

// State is the polymorphic unit every lifecycle phase implements.
// OnExit must never propagate an error: a failure inside it is caught
// and logged by the concrete state itself, not handed back to the
// coordinator.
type State interface {
	// SetContext installs the owning Coordinator. Called by the
	// coordinator's switch-state task before OnEnter runs.
	SetContext(c Coordinator)

	// OnEnter runs the state's entry logic. A non-nil return is the
	// only way a state reports a fatal entry failure; the coordinator
	// logs it and switches to Cleanup with that error.
	OnEnter(ctx context.Context) error

	// OnExit runs the state's exit logic. Must never propagate an
	// error; implementations catch and log internally.
	OnExit(ctx context.Context)

	// Name identifies the state for logging, metrics, and tests.
	Name() string
}

// Coordinator is the minimal surface state needs from the root
// package's StreamingContext. It is declared here, not in root, so
// state compiles and tests independently of root; *StreamingContext
// satisfies it structurally.
type Coordinator interface {
	// AddTask appends a unit of work to the session's task queue.
	// Errors returned from task are logged and converted into a
	// transition to Cleanup by the generic handler.
	AddTask(task func() error)

	// ScheduleTask arranges for task to run on the queue after delay.
	ScheduleTask(task func() error, delay time.Duration)

	// SwitchState enqueues a state transition; it never runs OnExit or
	// OnEnter synchronously on the caller's goroutine.
	SwitchState(next State)

	// SessionID returns the owning session's cluster-unique identifier.
	SessionID() string

	// Session returns the owning session's full identity and limits.
	Session() types.Session

	// Store returns the coordination-store client.
	Store() coordination.Client

	// Logger returns the structured logger.
	Logger() types.Logger

	// Metrics returns the metrics collector.
	Metrics() types.MetricsCollector

	// CursorConverter returns the configured raw-offset-to-cursor
	// converter.
	CursorConverter() types.CursorConverter

	// Writer returns the client stream output sink.
	Writer() types.Writer

	// Hooks returns the session's optional lifecycle hooks.
	Hooks() types.Hooks

	// AuthorizationWatcher returns the configured authorization-change
	// watcher.
	AuthorizationWatcher() types.AuthorizationWatcher

	// ConsumptionGate returns the configured consumption gate, or nil
	// if none was configured.
	ConsumptionGate() types.ConsumptionGate

	// WriteTerminalOnce writes frame through Writer exactly once across
	// the session's lifetime; later calls are no-ops. Cleanup relies on
	// this so a second entry never overwrites the first terminal frame.
	WriteTerminalOnce(ctx context.Context, frame types.TerminalFrame) error

	// Rebalance re-reads the session list and partition topology under
	// the coordination lock and writes whatever changeset the injected
	// rebalancer computes.
	Rebalance() error

	// Context returns the session's long-lived run context, for task
	// closures that fire outside any OnEnter/OnExit call a state is
	// handed one directly.
	Context() context.Context
}

// baseState gives every concrete state a common SetContext
// implementation; embed it rather than repeating the field everywhere.
type baseState struct {
	ctx Coordinator
}

func (b *baseState) SetContext(c Coordinator) { b.ctx = c }
