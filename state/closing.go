package state

import (
	"context"
	"time"

	"github.com/arloliu/nakasess/coordination"
	"github.com/arloliu/nakasess/types"
)

// Closing implements the deadline-bounded partition handoff protocol:
// the session is leaving and must release every partition it holds,
// waiting up to commit_timeout for the client
// to catch up on partitions it has not yet committed before releasing
// them, so that no events are lost at the handoff boundary.
type Closing struct {
	baseState

	uncommittedOffsetsSupplier func() map[types.EventTypePartition]types.NakadiCursor
	lastCommitSupplier         func() time.Time

	uncommittedOffsets map[types.EventTypePartition]types.NakadiCursor
	listeners          map[types.EventTypePartition]coordination.OffsetListener
	topologyListener   coordination.TopologyListener
	completed          bool
}

var _ State = (*Closing)(nil)

// NewClosing constructs a Closing state. uncommittedOffsetsSupplier and
// lastCommitSupplier are read once, synchronously, at OnEnter — the
// Streaming state's uncommitted-offsets map and last commit timestamp
// at the moment of transition.
func NewClosing(
	uncommittedOffsetsSupplier func() map[types.EventTypePartition]types.NakadiCursor,
	lastCommitSupplier func() time.Time,
) *Closing {
	return &Closing{
		uncommittedOffsetsSupplier: uncommittedOffsetsSupplier,
		lastCommitSupplier:         lastCommitSupplier,
		listeners:                  make(map[types.EventTypePartition]coordination.OffsetListener),
	}
}

func (cl *Closing) Name() string { return "closing" }

func (cl *Closing) OnEnter(ctx context.Context) error {
	c := cl.ctx

	cl.uncommittedOffsets = cl.uncommittedOffsetsSupplier()

	timeToWait := c.Session().CommitTimeout - time.Since(cl.lastCommitSupplier())
	if timeToWait < 0 {
		timeToWait = 0
	}

	c.Metrics().RecordCloseEntered(len(cl.uncommittedOffsets))

	// Fast path: nothing to wait for, or the deadline has already
	// elapsed by the time we got here.
	if len(cl.uncommittedOffsets) == 0 || timeToWait <= 0 {
		c.SwitchState(NewCleanup(nil))

		return nil
	}

	// The deadline task deterministically forces a clean close
	// regardless of offset progress; it may still fire after the
	// session has already moved on to Cleanup, which is harmless
	// because Cleanup is idempotent against a second Cleanup entry.
	c.ScheduleTask(cl.onDeadlineExpired, timeToWait)

	topologyListener, err := c.Store().SubscribeForTopologyChanges(ctx, func(_ types.Topology) {
		c.AddTask(func() error { return cl.reactOnTopologyChange(c.Context()) })
	})
	if err != nil {
		c.SwitchState(NewCleanup(err))

		return nil
	}
	cl.topologyListener = topologyListener

	return cl.reactOnTopologyChange(ctx)
}

func (cl *Closing) onDeadlineExpired() error {
	c := cl.ctx
	if len(cl.uncommittedOffsets) > 0 {
		c.Metrics().RecordDeadlineExpired(len(cl.uncommittedOffsets))
	}
	c.SwitchState(NewCleanup(nil))

	return nil
}

// reactOnTopologyChange snapshots the current topology and classifies
// every partition this session owns:
//
//   - REASSIGNING with no uncommitted offset: nothing to wait for,
//     release immediately.
//   - REASSIGNING with an uncommitted offset and no listener yet: start
//     watching its commit.
//   - ASSIGNED with an uncommitted offset and no listener yet: start
//     watching its commit too, in case it later flips to REASSIGNING.
//   - any uncommitted key no longer present in the topology at all: the
//     coordination store already dropped this session's claim; release
//     it locally without further waiting.
func (cl *Closing) reactOnTopologyChange(ctx context.Context) error {
	c := cl.ctx

	top, err := cl.topologyListener.Data(ctx)
	if err != nil {
		return err
	}

	owned := top.OwnedBy(c.SessionID())
	ownedSet := make(map[types.EventTypePartition]struct{}, len(owned))
	for _, p := range owned {
		ownedSet[p.Key] = struct{}{}
	}

	var reassigningFree, addListeners []types.EventTypePartition

	for _, p := range owned {
		switch p.State {
		case types.Reassigning:
			if _, uncommitted := cl.uncommittedOffsets[p.Key]; !uncommitted {
				reassigningFree = append(reassigningFree, p.Key)
			} else if _, watched := cl.listeners[p.Key]; !watched {
				addListeners = append(addListeners, p.Key)
			}
		case types.Assigned:
			if _, uncommitted := cl.uncommittedOffsets[p.Key]; uncommitted {
				if _, watched := cl.listeners[p.Key]; !watched {
					addListeners = append(addListeners, p.Key)
				}
			}
		case types.Unassigned:
			// Cannot occur for the owning session's own records, by
			// construction.
		}
	}

	var topologyRemoved []types.EventTypePartition
	for key := range cl.uncommittedOffsets {
		if _, stillOwned := ownedSet[key]; !stillOwned {
			topologyRemoved = append(topologyRemoved, key)
		}
	}

	if err := cl.freePartitions(ctx, reassigningFree, "reassigning_no_pending"); err != nil {
		return err
	}
	if err := cl.freePartitions(ctx, topologyRemoved, "topology_removed"); err != nil {
		return err
	}

	for _, key := range addListeners {
		if err := cl.registerListener(ctx, key); err != nil {
			return err
		}
	}

	cl.tryCompleteState()

	return nil
}

// registerListener subscribes to key's offset node and then reacts to
// its current value once, synchronously, in case it is already caught
// up.
func (cl *Closing) registerListener(ctx context.Context, key types.EventTypePartition) error {
	c := cl.ctx

	listener, err := c.Store().SubscribeForOffsetChanges(ctx, key, func() {
		c.AddTask(func() error { return cl.offsetChanged(key) })
	})
	if err != nil {
		return err
	}

	cl.listeners[key] = listener

	return cl.reactOnOffset(ctx, key)
}

// offsetChanged: a key already freed by the time its offset watch
// fires is a no-op that issues no store read.
func (cl *Closing) offsetChanged(key types.EventTypePartition) error {
	listener, ok := cl.listeners[key]
	if !ok {
		return nil
	}

	ctx := cl.ctx.Context()

	if err := listener.Refresh(ctx); err != nil {
		return err
	}

	return cl.reactOnOffset(ctx, key)
}

// reactOnOffset reads key's committed offset and frees it once the
// commit has caught up to the session's recorded stream position: the
// partition is deemed committed iff uncommittedOffsets[key].Compare(new)
// <= 0, i.e. the committed offset is at or past it.
func (cl *Closing) reactOnOffset(ctx context.Context, key types.EventTypePartition) error {
	c := cl.ctx

	uncommitted, ok := cl.uncommittedOffsets[key]
	if !ok {
		cl.tryCompleteState()

		return nil
	}

	raw, err := c.Store().GetOffset(ctx, key)
	if err != nil {
		return err
	}

	cursor, err := c.CursorConverter().Convert(key.EventType, raw)
	if err != nil {
		return types.NewParseError(raw, err)
	}
	cursor.Partition = key

	if uncommitted.Compare(cursor) <= 0 {
		if err := cl.freePartitions(ctx, []types.EventTypePartition{key}, "committed"); err != nil {
			return err
		}
	}

	cl.tryCompleteState()

	return nil
}

// tryCompleteState: once uncommittedOffsets is empty, Closing
// transitions to Cleanup within one task dispatch. The switch is
// requested at most once, even when a nested topology reaction has
// already emptied the map.
func (cl *Closing) tryCompleteState() {
	if len(cl.uncommittedOffsets) == 0 && !cl.completed {
		cl.completed = true
		cl.ctx.SwitchState(NewCleanup(nil))
	}
}

// freePartitions removes keys from uncommittedOffsets, closes and drops
// any listener registered for them, and atomically transfers them away
// from this session under the coordination lock. Listener close
// failures are logged and the first one is remembered, but cancellation
// of the rest and the transfer itself still proceed; the remembered
// error is only returned once Transfer has not itself already failed.
func (cl *Closing) freePartitions(ctx context.Context, keys []types.EventTypePartition, reason string) error {
	if len(keys) == 0 {
		return nil
	}

	c := cl.ctx

	var firstErr error
	for _, key := range keys {
		delete(cl.uncommittedOffsets, key)

		if l, ok := cl.listeners[key]; ok {
			delete(cl.listeners, key)

			if err := l.Close(); err != nil {
				c.Logger().Warn("failed to close offset listener", "partition", key.String(), "error", err)
				c.Metrics().RecordListenerCancelFailure()

				if firstErr == nil {
					firstErr = types.NewListenerCancelError(key, err)
				}
			}
		}

		c.Metrics().RecordPartitionFreed(reason)
	}

	err := c.Store().RunLocked(ctx, func(ctx context.Context) error {
		return c.Store().Transfer(ctx, c.SessionID(), keys)
	})
	if err != nil {
		return err
	}

	if hooks := c.Hooks(); hooks.OnPartitionsFreed != nil {
		hooks.OnPartitionsFreed(keys, reason)
	}

	return firstErr
}

// OnExit releases every partition still outstanding, whether or not a
// listener was ever registered for it: listener keys are only ever a
// subset of uncommittedOffsets, not the converse, so a forced release
// from the fast path (no listeners ever created) or the deadline firing
// mid-wait still needs to transfer every remaining partition away from
// this session. Any error from that release is logged and swallowed,
// never rethrown.
func (cl *Closing) OnExit(ctx context.Context) {
	c := cl.ctx

	keys := make([]types.EventTypePartition, 0, len(cl.uncommittedOffsets))
	for key := range cl.uncommittedOffsets {
		keys = append(keys, key)
	}

	if err := cl.freePartitions(ctx, keys, "state_exit"); err != nil {
		c.Logger().Warn("error freeing partitions on closing exit", "error", err)
	}

	if cl.topologyListener != nil {
		if err := cl.topologyListener.Close(); err != nil {
			c.Logger().Warn("failed to close topology listener", "error", err)
		}
		cl.topologyListener = nil
	}
}
