package state

import (
	"context"

	"github.com/arloliu/nakasess/types"
)

// Cleanup unregisters the session, writes the session's single terminal
// frame, and switches to Dead. Safe to enter from any
// state, including itself: the terminal frame is written at most once
// across the session's lifetime via Coordinator.WriteTerminalOnce, so a
// later Cleanup entry — for example the Closing deadline task firing
// after tryCompleteState already moved the session on — can never
// overwrite an earlier error frame with a later "clean" one.
type Cleanup struct {
	baseState

	err error
}

var _ State = (*Cleanup)(nil)

// NewCleanup constructs a Cleanup state. err is nil for a clean close,
// or the first fatal error the session encountered.
func NewCleanup(err error) *Cleanup {
	return &Cleanup{err: err}
}

func (cl *Cleanup) Name() string { return "cleanup" }

func (cl *Cleanup) OnEnter(ctx context.Context) error {
	c := cl.ctx

	if err := c.Store().UnregisterSession(ctx, c.SessionID()); err != nil {
		c.Logger().Warn("failed to unregister session during cleanup", "session", c.SessionID(), "error", err)
	}

	kind := "clean"
	if cl.err != nil {
		kind = "error"
	}

	if err := c.WriteTerminalOnce(ctx, types.TerminalFrame{Kind: kind, Err: cl.err}); err != nil {
		c.Logger().Warn("failed to write terminal frame", "kind", kind, "error", err)
	}
	c.Metrics().RecordTerminalFrame(kind)

	c.SwitchState(NewDead())

	return nil
}

func (cl *Cleanup) OnExit(_ context.Context) {}
