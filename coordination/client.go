// Package coordination defines the abstract coordination-store client
// and its NATS JetStream KV binding.
//
// The core (package state, and the root StreamingContext) only ever
// talks to the Client interface; nothing outside this package imports
// jetstream types directly, so CoordinationError is the only NATS
// failure shape that crosses the package boundary.
package coordination

import (
	"context"

	"github.com/arloliu/nakasess/types"
)

// Listener is a handle on a watched coordination-store node. Close is
// idempotent: a second Close returns nil. Calling Refresh (or a
// TopologyListener's Data) after Close returns types.ErrListenerClosed.
type Listener interface {
	// Refresh re-synchronizes the listener's cached view of its node
	// with the store. NATS JetStream watches are continuously armed (no
	// one-shot re-arm step the way a ZooKeeper watch needs), so Refresh
	// is a one-shot resync rather than a re-subscribe.
	Refresh(ctx context.Context) error

	// Close releases the underlying watch. Safe to call more than once.
	Close() error
}

// TopologyListener additionally exposes the latest topology snapshot.
type TopologyListener interface {
	Listener

	// Data returns the most recently observed Topology. If no update
	// has been observed yet, it performs a one-shot read.
	Data(ctx context.Context) (types.Topology, error)
}

// OffsetListener watches a single partition's committed-offset node.
type OffsetListener interface {
	Listener
}

// SessionListListener watches the subscription's session registry.
type SessionListListener interface {
	Listener
}

// Client is the contract the core consumes from the coordination
// store.
type Client interface {
	// SubscribeForTopologyChanges installs a watch on the subscription's
	// topology node. handler is invoked once per version observed, on an
	// unspecified goroutine; handler must do nothing but enqueue a task.
	SubscribeForTopologyChanges(ctx context.Context, handler func(types.Topology)) (TopologyListener, error)

	// SubscribeForOffsetChanges installs a watch on a single partition's
	// committed-offset node.
	SubscribeForOffsetChanges(ctx context.Context, key types.EventTypePartition, handler func()) (OffsetListener, error)

	// SubscribeForSessionListChanges installs a watch over the whole
	// session registry.
	SubscribeForSessionListChanges(ctx context.Context, handler func()) (SessionListListener, error)

	// GetOffset performs a one-shot read of a partition's committed
	// offset, returning the raw (unconverted) value.
	GetOffset(ctx context.Context, key types.EventTypePartition) (string, error)

	// RegisterSession publishes session into the registry and keeps its
	// membership node alive for as long as the session remains
	// registered. Idempotent by session.ID.
	RegisterSession(ctx context.Context, session types.Session) error

	// UnregisterSession removes a session's membership node. Idempotent:
	// unregistering an unknown or already-unregistered session ID is a
	// no-op, not an error.
	UnregisterSession(ctx context.Context, sessionID string) error

	// ListSessions returns every currently registered session.
	ListSessions(ctx context.Context) ([]types.Session, error)

	// ListPartitions returns the full partition topology as a flat list.
	ListPartitions(ctx context.Context) ([]types.PartitionRecord, error)

	// UpdatePartitionsConfiguration writes a batch of new
	// (key, session, state) assignments, merging them into the current
	// topology under an optimistic-concurrency retry.
	UpdatePartitionsConfiguration(ctx context.Context, changes []types.PartitionRecord) error

	// Transfer atomically moves the listed partitions out of
	// fromSession, marking them Unassigned so any eligible session may
	// claim them on the next rebalance.
	Transfer(ctx context.Context, fromSession string, keys []types.EventTypePartition) error

	// RunLocked executes action while holding the subscription-global
	// coordination lock. Returns a CoordinationError wrapping
	// types.ErrLockHeld if another session holds the lock. Any other
	// failure to acquire the lock, and action's own error, are returned
	// as they are, not wrapped in a CoordinationError.
	RunLocked(ctx context.Context, action func(ctx context.Context) error) error
}
