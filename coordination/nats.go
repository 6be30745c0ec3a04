package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/nakasess/internal/kvutil"
	"github.com/arloliu/nakasess/internal/lock"
	"github.com/arloliu/nakasess/internal/metrics"
	"github.com/arloliu/nakasess/internal/natsutil"
	"github.com/arloliu/nakasess/internal/sessionlease"
	"github.com/arloliu/nakasess/types"
)

// sessionLeaseInterval is how often a registered session's membership
// node is re-written. It has no relationship to commit_timeout_ms; it
// only needs to be comfortably shorter than the bucket's session TTL,
// if one is configured.
const sessionLeaseInterval = 10 * time.Second

// NATSClient binds Client to a single subscription's NATS JetStream KV
// bucket.
type NATSClient struct {
	js jetstream.JetStream
	kv jetstream.KeyValue
	l  *lock.Lock

	logger  types.Logger
	metrics types.MetricsCollector

	mu     sync.Mutex
	leases map[string]*sessionlease.Lease
}

var _ Client = (*NATSClient)(nil)

// ClientOption configures a NATSClient.
type ClientOption func(*NATSClient)

// WithClientMetrics records every store call's latency through
// collector, tagged by operation name ("get_offset", "transfer",
// "run_locked", ...). Defaults to a no-op collector.
func WithClientMetrics(collector types.MetricsCollector) ClientOption {
	return func(c *NATSClient) { c.metrics = collector }
}

// NewNATSClient opens (creating if necessary) the KV bucket backing
// subscriptionID's coordination data and returns a Client bound to it.
func NewNATSClient(ctx context.Context, js jetstream.JetStream, subscriptionID string, logger types.Logger, opts ...ClientOption) (*NATSClient, error) {
	kv, err := kvutil.EnsureSubscriptionBucket(ctx, js, subscriptionID, 1)
	if err != nil {
		return nil, types.NewCoordinationError("open_bucket", err)
	}

	c := &NATSClient{
		js:     js,
		kv:     kv,
		l:      lock.New(kv, lockKey, logger),
		logger: logger,
		leases: make(map[string]*sessionlease.Lease),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNop()
	}

	return c, nil
}

// recordDuration reports op's latency since start through the
// configured MetricsCollector.
func (c *NATSClient) recordDuration(op string, start time.Time) {
	c.metrics.RecordStoreOperationDuration(op, time.Since(start).Seconds())
}

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if natsutil.IsConnectivityError(err) {
		err = fmt.Errorf("%w: %w", types.ErrConnectivity, err)
	}

	return types.NewCoordinationError(op, err)
}

// SubscribeForTopologyChanges implements Client.
func (c *NATSClient) SubscribeForTopologyChanges(ctx context.Context, handler func(types.Topology)) (TopologyListener, error) {
	defer c.recordDuration("subscribe_topology", time.Now())

	l, err := watchTopology(ctx, c.kv, handler)
	if err != nil {
		return nil, wrapStoreErr("subscribe_topology", err)
	}

	return l, nil
}

// SubscribeForOffsetChanges implements Client.
func (c *NATSClient) SubscribeForOffsetChanges(ctx context.Context, key types.EventTypePartition, handler func()) (OffsetListener, error) {
	defer c.recordDuration("subscribe_offset", time.Now())

	l, err := watchSimple(ctx, c.kv, offsetKey(key), handler)
	if err != nil {
		return nil, wrapStoreErr("subscribe_offset", err)
	}

	return l, nil
}

// SubscribeForSessionListChanges implements Client.
func (c *NATSClient) SubscribeForSessionListChanges(ctx context.Context, handler func()) (SessionListListener, error) {
	defer c.recordDuration("subscribe_sessions", time.Now())

	l, err := watchSimple(ctx, c.kv, sessionWatchFilter, handler)
	if err != nil {
		return nil, wrapStoreErr("subscribe_sessions", err)
	}

	return l, nil
}

// GetOffset implements Client.
func (c *NATSClient) GetOffset(ctx context.Context, key types.EventTypePartition) (string, error) {
	defer c.recordDuration("get_offset", time.Now())

	entry, err := c.kv.Get(ctx, offsetKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", wrapStoreErr("get_offset", fmt.Errorf("%w: %s", types.ErrNoSuchPartition, key))
		}

		return "", wrapStoreErr("get_offset", err)
	}

	return string(entry.Value()), nil
}

// RegisterSession implements Client. It is idempotent: registering an
// already-registered session ID restarts the renewal lease and returns
// nil rather than erroring.
func (c *NATSClient) RegisterSession(ctx context.Context, session types.Session) error {
	defer c.recordDuration("register_session", time.Now())

	data, err := json.Marshal(session)
	if err != nil {
		return wrapStoreErr("register_session", err)
	}

	c.mu.Lock()
	if existing, ok := c.leases[session.ID]; ok {
		c.mu.Unlock()
		_ = existing.Stop(ctx)
		c.mu.Lock()
		delete(c.leases, session.ID)
	}
	c.mu.Unlock()

	lease := sessionlease.New(c.kv, sessionKey(session.ID), sessionLeaseInterval, func() []byte { return data })
	if err := lease.Start(ctx); err != nil {
		return wrapStoreErr("register_session", err)
	}

	c.mu.Lock()
	c.leases[session.ID] = lease
	c.mu.Unlock()

	return nil
}

// UnregisterSession implements Client.
func (c *NATSClient) UnregisterSession(ctx context.Context, sessionID string) error {
	defer c.recordDuration("unregister_session", time.Now())

	c.mu.Lock()
	lease, ok := c.leases[sessionID]
	delete(c.leases, sessionID)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if err := lease.Stop(ctx); err != nil && !errors.Is(err, sessionlease.ErrNotStarted) {
		return wrapStoreErr("unregister_session", err)
	}

	return nil
}

// ListSessions implements Client.
func (c *NATSClient) ListSessions(ctx context.Context) ([]types.Session, error) {
	defer c.recordDuration("list_sessions", time.Now())

	keys, err := c.kv.Keys(ctx)
	if err != nil {
		if natsutil.IsNoKeysFoundError(err) {
			return nil, nil
		}

		return nil, wrapStoreErr("list_sessions", err)
	}

	sessions := make([]types.Session, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, sessionKeyPrefix) {
			continue
		}

		entry, err := c.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, wrapStoreErr("list_sessions", err)
		}

		var session types.Session
		if err := json.Unmarshal(entry.Value(), &session); err != nil {
			return nil, wrapStoreErr("list_sessions", err)
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

// ListPartitions implements Client.
func (c *NATSClient) ListPartitions(ctx context.Context) ([]types.PartitionRecord, error) {
	defer c.recordDuration("list_partitions", time.Now())

	top, err := c.readTopology(ctx)
	if err != nil {
		return nil, wrapStoreErr("list_partitions", err)
	}

	return top.Partitions, nil
}

// UpdatePartitionsConfiguration implements Client.
func (c *NATSClient) UpdatePartitionsConfiguration(ctx context.Context, changes []types.PartitionRecord) error {
	defer c.recordDuration("update_partitions", time.Now())

	if len(changes) == 0 {
		return nil
	}

	return c.mutateTopology(ctx, "update_partitions", func(top *types.Topology) {
		applyChanges(top, changes)
	})
}

// Transfer implements Client.
func (c *NATSClient) Transfer(ctx context.Context, fromSession string, keys []types.EventTypePartition) error {
	defer c.recordDuration("transfer", time.Now())

	if len(keys) == 0 {
		return nil
	}

	want := make(map[types.EventTypePartition]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	return c.mutateTopology(ctx, "transfer", func(top *types.Topology) {
		for i := range top.Partitions {
			p := &top.Partitions[i]
			if p.Session != fromSession {
				continue
			}
			if _, ok := want[p.Key]; !ok {
				continue
			}

			p.Session = ""
			p.State = types.Unassigned
		}
	})
}

// RunLocked implements Client.
func (c *NATSClient) RunLocked(ctx context.Context, action func(ctx context.Context) error) error {
	defer c.recordDuration("run_locked", time.Now())

	err := c.l.Run(ctx, action)
	if err != nil && errors.Is(err, types.ErrLockHeld) {
		return wrapStoreErr("run_locked", err)
	}

	return err
}

func (c *NATSClient) readTopology(ctx context.Context) (types.Topology, error) {
	top, _, err := c.readTopologyRevision(ctx)
	return top, err
}

// readTopologyRevision reads the topology along with the KV revision it
// was read at (0 if the key does not exist yet), so a subsequent write
// can be revision-checked against exactly what was read.
func (c *NATSClient) readTopologyRevision(ctx context.Context) (types.Topology, uint64, error) {
	entry, err := c.kv.Get(ctx, topologyKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.Topology{}, 0, nil
		}

		return types.Topology{}, 0, err
	}

	var top types.Topology
	if err := json.Unmarshal(entry.Value(), &top); err != nil {
		return types.Topology{}, 0, err
	}

	return top, entry.Revision(), nil
}

// mutateTopology reads the current topology, applies mutate, bumps the
// version, and writes it back under an optimistic-concurrency retry:
// Update fails on a revision conflict if another session wrote
// concurrently, in which case the read-mutate-write cycle restarts.
func (c *NATSClient) mutateTopology(ctx context.Context, op string, mutate func(*types.Topology)) error {
	const maxAttempts = 10

	for attempt := 0; attempt < maxAttempts; attempt++ {
		top, rev, err := c.readTopologyRevision(ctx)
		if err != nil {
			return wrapStoreErr(op, err)
		}

		mutate(&top)
		top.Version++

		data, err := json.Marshal(top)
		if err != nil {
			return wrapStoreErr(op, err)
		}

		if rev == 0 {
			_, err = c.kv.Create(ctx, topologyKey, data)
		} else {
			_, err = c.kv.Update(ctx, topologyKey, data, rev)
		}

		if err == nil {
			return nil
		}

		if errors.Is(err, jetstream.ErrKeyExists) || isUpdateConflict(err) {
			continue // lost the race, retry with a fresh read
		}

		return wrapStoreErr(op, err)
	}

	return wrapStoreErr(op, fmt.Errorf("gave up after %d attempts contending for topology", maxAttempts))
}

func isUpdateConflict(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

func applyChanges(top *types.Topology, changes []types.PartitionRecord) {
	byKey := make(map[types.EventTypePartition]int, len(top.Partitions))
	for i, p := range top.Partitions {
		byKey[p.Key] = i
	}

	for _, change := range changes {
		if i, ok := byKey[change.Key]; ok {
			top.Partitions[i] = change
			continue
		}

		byKey[change.Key] = len(top.Partitions)
		top.Partitions = append(top.Partitions, change)
	}
}
