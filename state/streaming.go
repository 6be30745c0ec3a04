package state

import (
	"context"
	"time"

	"github.com/arloliu/nakasess/types"
)

// Streaming is the normal serving state. For this core, its contract is
// limited to what the closing protocol needs: it maintains
// uncommittedOffsets, which Closing reads through
// UncommittedOffsetsSupplier at the moment of entering Closing, and it
// records lastCommitTS, which Closing reads through LastCommitSupplier.
// The actual poll/read path and wire framing that would populate these
// in a full deployment are out of scope for this core; RecordDelivery
// and RecordCommit are the seam an embedding poll loop calls into.
type Streaming struct {
	baseState

	uncommittedOffsets map[types.EventTypePartition]types.NakadiCursor
	lastCommitTS       time.Time
}

var _ State = (*Streaming)(nil)

// NewStreaming constructs a Streaming state with an empty
// uncommitted-offsets map and lastCommitTS set to now, so a session that
// enters Closing immediately after Streaming without ever committing
// does not appear to have an already-expired deadline.
func NewStreaming() *Streaming {
	return &Streaming{
		uncommittedOffsets: make(map[types.EventTypePartition]types.NakadiCursor),
		lastCommitTS:       time.Now(),
	}
}

func (s *Streaming) Name() string { return "streaming" }

func (s *Streaming) OnEnter(_ context.Context) error {
	c := s.ctx

	if gate := c.ConsumptionGate(); gate != nil && gate.Blocked(c.Session()) {
		c.Logger().Warn("subscription consumption blocked, closing session", "session", c.SessionID())
		c.AddTask(func() error {
			s.Close()
			return nil
		})
	}

	return nil
}

func (s *Streaming) OnExit(_ context.Context) {}

// RecordDelivery records that cursor has been streamed to the client for
// key without yet being committed. Must only be called from the
// task-loop goroutine.
func (s *Streaming) RecordDelivery(key types.EventTypePartition, cursor types.NakadiCursor) {
	s.uncommittedOffsets[key] = cursor
}

// RecordCommit records that key's outstanding cursor has been committed
// and refreshes lastCommitTS. Must only be called from the task-loop
// goroutine.
func (s *Streaming) RecordCommit(key types.EventTypePartition) {
	delete(s.uncommittedOffsets, key)
	s.lastCommitTS = time.Now()
}

// UncommittedOffsetsSupplier returns the closure Closing reads once at
// entry — a snapshot copy, not a live view of this Streaming instance,
// since Streaming is discarded once Closing takes over.
func (s *Streaming) UncommittedOffsetsSupplier() func() map[types.EventTypePartition]types.NakadiCursor {
	return func() map[types.EventTypePartition]types.NakadiCursor {
		snapshot := make(map[types.EventTypePartition]types.NakadiCursor, len(s.uncommittedOffsets))
		for k, v := range s.uncommittedOffsets {
			snapshot[k] = v
		}

		return snapshot
	}
}

// LastCommitSupplier returns the closure Closing reads once at entry to
// compute the remaining deadline.
func (s *Streaming) LastCommitSupplier() func() time.Time {
	return func() time.Time { return s.lastCommitTS }
}

// Close switches to Closing, handing it this Streaming instance's
// current uncommitted-offsets snapshot and last-commit timestamp. This
// is the shutdown-or-error-condition trigger; an embedding poll loop
// (or, here, the consumption-gate check above) calls it from a task.
func (s *Streaming) Close() {
	s.ctx.SwitchState(NewClosing(s.UncommittedOffsetsSupplier(), s.LastCommitSupplier()))
}
