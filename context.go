package nakasess

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/nakasess/coordination"
	"github.com/arloliu/nakasess/internal/logging"
	"github.com/arloliu/nakasess/internal/metrics"
	"github.com/arloliu/nakasess/internal/queue"
	"github.com/arloliu/nakasess/state"
	"github.com/arloliu/nakasess/types"
)

// StreamingContext is the process-wide-per-session controller: it holds
// the current lifecycle state, drives the single-consumer task queue,
// and exposes the primitives every state.State implementation needs
// through state.Coordinator.
//
// A StreamingContext is created per client stream (Stream runs it to
// completion) and is discarded once it reaches state.Dead; it is not
// reused across sessions.
type StreamingContext struct {
	cfg        Config
	store      coordination.Client
	session    types.Session
	rebalancer Rebalancer

	logger      types.Logger
	metrics     types.MetricsCollector
	writer      types.Writer
	converter   types.CursorConverter
	authWatcher types.AuthorizationWatcher
	gate        types.ConsumptionGate
	hooks       types.Hooks
	shutdown    types.ShutdownHookRegistry

	queue  *queue.Queue
	runCtx context.Context //nolint:containedctx // the session's long-lived run context; task closures fired from unrelated goroutines (watchers, timers) need one outside any single OnEnter/OnExit call

	mu              sync.Mutex
	currentState    state.State
	terminalWritten bool
}

var _ state.Coordinator = (*StreamingContext)(nil)

// New constructs a StreamingContext for a single client session. store
// must already be bound to the subscription this session belongs to;
// rebalancer may be nil, in which case Rebalance never writes a change.
func New(cfg Config, store coordination.Client, session types.Session, rebalancer Rebalancer, opts ...Option) *StreamingContext {
	o := &contextOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if session.CommitTimeout <= 0 {
		session.CommitTimeout = cfg.CommitTimeout
	}

	queueOpts := []queue.Option{}
	if o.timer != nil {
		queueOpts = append(queueOpts, queue.WithTimer(o.timer))
	}

	c := &StreamingContext{
		cfg:         cfg,
		store:       store,
		session:     session,
		rebalancer:  rebalancer,
		logger:      o.logger,
		metrics:     o.metrics,
		writer:      o.writer,
		converter:   o.converter,
		authWatcher: o.authWatcher,
		gate:        o.gate,
		hooks:       o.hooks,
		shutdown:    o.shutdownHooks,
		queue:       queue.New(queueOpts...),
	}

	if c.logger == nil {
		c.logger = logging.NopLogger{}
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNop()
	}
	if c.writer == nil {
		c.writer = NopWriter{}
	}
	if c.converter == nil {
		c.converter = DefaultCursorConverter{}
	}
	if c.authWatcher == nil {
		c.authWatcher = NopAuthorizationWatcher{}
	}
	if c.shutdown == nil {
		c.shutdown = newShutdownHooks()
	}

	return c
}

// Stream is the top-level entry point: it installs a shutdown hook that
// unconditionally switches the session to Cleanup, starts the session
// in Starting, and runs the task-loop until the session reaches Dead or
// ctx is cancelled.
func (c *StreamingContext) Stream(ctx context.Context) error {
	c.runCtx = ctx

	hook := c.shutdown.Add(c.handleShutdown)
	defer hook.Close() //nolint:errcheck // removing a shutdown hook cannot meaningfully fail

	c.SwitchState(state.NewStarting())

	c.queue.Run(ctx, c.isDead)
	c.queue.Close()

	return nil
}

// Shutdown fires the process-shutdown hook, which switches the session
// straight to Cleanup (see handleShutdown). Safe to call more than once;
// only the first call has an effect. Only fires the built-in
// ShutdownHookRegistry; if WithShutdownHooks supplied a custom one, the
// embedder owns invoking it.
func (c *StreamingContext) Shutdown() {
	if h, ok := c.shutdown.(*shutdownHooks); ok {
		h.Fire()
	}
}

// handleShutdown is the hook Stream installs on the shutdown registry.
// It switches straight to Cleanup regardless of the current state, so a
// process shutdown never waits out the closing protocol's commit_timeout
// grace period.
func (c *StreamingContext) handleShutdown() {
	c.SwitchState(state.NewCleanup(nil))
}

// RequestGracefulClose asks the session to leave gracefully: if it is
// currently Streaming, this routes through the closing protocol
// (state.Closing) so outstanding commits still get their commit_timeout
// grace period before their partitions are released; for any other
// state there is nothing to wait for, so it switches straight to
// Cleanup. Safe to call from any goroutine, including more than once.
// Nothing wires this to the process shutdown hook; callers that want the
// graceful path call it explicitly.
func (c *StreamingContext) RequestGracefulClose() {
	c.AddTask(func() error {
		c.mu.Lock()
		cur := c.currentState
		c.mu.Unlock()

		if s, ok := cur.(*state.Streaming); ok {
			s.Close()

			return nil
		}

		c.SwitchState(state.NewCleanup(nil))

		return nil
	})
}

func (c *StreamingContext) isDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.currentState.(*state.Dead)

	return ok
}

// AddTask implements state.Coordinator.
func (c *StreamingContext) AddTask(task func() error) {
	c.queue.Add(func() { c.runTask(task) })
}

// ScheduleTask implements state.Coordinator.
func (c *StreamingContext) ScheduleTask(task func() error, delay time.Duration) {
	c.queue.Schedule(func() { c.runTask(task) }, delay)
}

func (c *StreamingContext) runTask(task func() error) {
	if err := c.safeRunTask(task); err != nil {
		c.failTask(err)
	}
}

func (c *StreamingContext) safeRunTask(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewProgrammerError(fmt.Sprintf("panic in task: %v", r))
		}
	}()

	return task()
}

func (c *StreamingContext) failTask(err error) {
	c.logger.Error("task failed, switching to cleanup",
		"session", c.session.ID, "logging_path", c.cfg.LoggingPath, "error", err)
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
	c.SwitchState(state.NewCleanup(err))
}

// SwitchState implements state.Coordinator. It only enqueues the
// transition; OnExit/OnEnter never run synchronously on the caller's
// goroutine.
func (c *StreamingContext) SwitchState(next state.State) {
	c.queue.Add(func() { c.runSwitch(next) })
}

func (c *StreamingContext) runSwitch(next state.State) {
	c.mu.Lock()
	prev := c.currentState
	c.mu.Unlock()

	start := time.Now()

	if prev != nil {
		c.safeExit(prev)
	}

	next.SetContext(c)

	c.mu.Lock()
	c.currentState = next
	c.mu.Unlock()

	err := c.safeEnter(next)

	prevName := "<none>"
	if prev != nil {
		prevName = prev.Name()
	}
	c.metrics.RecordStateTransition(prevName, next.Name(), time.Since(start).Seconds())
	if c.hooks.OnStateChanged != nil {
		c.hooks.OnStateChanged(prevName, next.Name())
	}

	if err != nil {
		c.logger.Error("state entry failed, switching to cleanup", "state", next.Name(), "error", err)
		c.SwitchState(state.NewCleanup(err))
	}
}

func (c *StreamingContext) safeExit(s state.State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in state OnExit", "state", s.Name(), "panic", r)
		}
	}()

	s.OnExit(c.runCtx)
}

func (c *StreamingContext) safeEnter(s state.State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewProgrammerError(fmt.Sprintf("panic in OnEnter of %s: %v", s.Name(), r))
		}
	}()

	return s.OnEnter(c.runCtx)
}

// SessionID implements state.Coordinator.
func (c *StreamingContext) SessionID() string { return c.session.ID }

// Session implements state.Coordinator.
func (c *StreamingContext) Session() types.Session { return c.session }

// Store implements state.Coordinator.
func (c *StreamingContext) Store() coordination.Client { return c.store }

// Logger implements state.Coordinator.
func (c *StreamingContext) Logger() types.Logger { return c.logger }

// Metrics implements state.Coordinator.
func (c *StreamingContext) Metrics() types.MetricsCollector { return c.metrics }

// CursorConverter implements state.Coordinator.
func (c *StreamingContext) CursorConverter() types.CursorConverter { return c.converter }

// Writer implements state.Coordinator.
func (c *StreamingContext) Writer() types.Writer { return c.writer }

// Hooks implements state.Coordinator.
func (c *StreamingContext) Hooks() types.Hooks { return c.hooks }

// AuthorizationWatcher implements state.Coordinator.
func (c *StreamingContext) AuthorizationWatcher() types.AuthorizationWatcher { return c.authWatcher }

// ConsumptionGate implements state.Coordinator.
func (c *StreamingContext) ConsumptionGate() types.ConsumptionGate { return c.gate }

// Context implements state.Coordinator.
func (c *StreamingContext) Context() context.Context { return c.runCtx }

// WriteTerminalOnce implements state.Coordinator.
func (c *StreamingContext) WriteTerminalOnce(ctx context.Context, frame types.TerminalFrame) error {
	c.mu.Lock()
	if c.terminalWritten {
		c.mu.Unlock()

		return nil
	}
	c.terminalWritten = true
	c.mu.Unlock()

	return c.writer.WriteTerminal(ctx, frame)
}

// Rebalance implements state.Coordinator. It re-reads the session list
// and partition topology under the coordination lock and writes
// whatever changeset the injected Rebalancer computes; no assignment
// decision happens outside the lock.
func (c *StreamingContext) Rebalance() error {
	return c.store.RunLocked(c.runCtx, func(ctx context.Context) error {
		sessions, err := c.store.ListSessions(ctx)
		if err != nil {
			return err
		}

		partitions, err := c.store.ListPartitions(ctx)
		if err != nil {
			return err
		}

		if c.rebalancer == nil {
			return nil
		}

		changes := c.rebalancer(ctx, sessions, partitions)
		if len(changes) == 0 {
			return nil
		}

		return c.store.UpdatePartitionsConfiguration(ctx, changes)
	})
}
