package nakasessfake

import (
	"context"
	"strconv"
	"sync"

	"github.com/arloliu/nakasess/coordination"
	"github.com/arloliu/nakasess/types"
)

// FakeClient is an in-memory coordination.Client double for tests that
// exercise the state machine without an embedded NATS server. Unlike
// NATSClient it has no optimistic-concurrency retry loop to test in its
// own right (coordination/nats_test.go covers that against the real
// store); it exists so state package tests can drive topology and
// offset changes deterministically, synchronously, from the test
// goroutine.
type FakeClient struct {
	mu sync.Mutex

	topology types.Topology
	offsets  map[types.EventTypePartition]string
	sessions map[string]types.Session

	locked bool

	nextID           int
	topologyWatchers map[int]func(types.Topology)
	offsetWatchers   map[types.EventTypePartition]map[int]func()
	sessionWatchers  map[int]func()
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		offsets:          make(map[types.EventTypePartition]string),
		sessions:         make(map[string]types.Session),
		topologyWatchers: make(map[int]func(types.Topology)),
		offsetWatchers:   make(map[types.EventTypePartition]map[int]func()),
		sessionWatchers:  make(map[int]func()),
	}
}

var _ coordination.Client = (*FakeClient)(nil)

// SetTopology replaces the current topology outright, without notifying
// watchers. Use PushTopology for that.
func (f *FakeClient) SetTopology(top types.Topology) {
	f.mu.Lock()
	f.topology = top
	f.mu.Unlock()
}

// PushTopology simulates a coordination-store write from any source
// (this session's own Transfer, another session's rebalance, ...): it
// installs top and synchronously notifies every registered topology
// watcher.
func (f *FakeClient) PushTopology(top types.Topology) {
	f.mu.Lock()
	f.topology = top
	watchers := make([]func(types.Topology), 0, len(f.topologyWatchers))
	for _, w := range f.topologyWatchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w(top)
	}
}

// PushOffset simulates a client commit: it records rawOffset as key's
// committed offset and synchronously notifies every offset watcher
// registered for key.
func (f *FakeClient) PushOffset(key types.EventTypePartition, rawOffset int64) {
	f.mu.Lock()
	f.offsets[key] = strconv.FormatInt(rawOffset, 10)
	watchers := make([]func(), 0, len(f.offsetWatchers[key]))
	for _, w := range f.offsetWatchers[key] {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w()
	}
}

// Topology returns the current topology snapshot.
func (f *FakeClient) Topology() types.Topology {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.topology
}

func (f *FakeClient) SubscribeForTopologyChanges(_ context.Context, handler func(types.Topology)) (coordination.TopologyListener, error) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.topologyWatchers[id] = handler
	f.mu.Unlock()

	return &fakeTopologyListener{client: f, id: id}, nil
}

func (f *FakeClient) SubscribeForOffsetChanges(_ context.Context, key types.EventTypePartition, handler func()) (coordination.OffsetListener, error) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.offsetWatchers[key] == nil {
		f.offsetWatchers[key] = make(map[int]func())
	}
	f.offsetWatchers[key][id] = handler
	f.mu.Unlock()

	return &fakeOffsetListener{client: f, key: key, id: id}, nil
}

func (f *FakeClient) SubscribeForSessionListChanges(_ context.Context, handler func()) (coordination.SessionListListener, error) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.sessionWatchers[id] = handler
	f.mu.Unlock()

	return &fakeSessionListener{client: f, id: id}, nil
}

func (f *FakeClient) GetOffset(_ context.Context, key types.EventTypePartition) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.offsets[key]
	if !ok {
		return "", types.NewCoordinationError("get_offset", types.ErrNoSuchPartition)
	}

	return raw, nil
}

func (f *FakeClient) RegisterSession(_ context.Context, session types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[session.ID] = session

	return nil
}

func (f *FakeClient) UnregisterSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	delete(f.sessions, sessionID)
	f.mu.Unlock()

	return nil
}

func (f *FakeClient) ListSessions(_ context.Context) ([]types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]types.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}

	return out, nil
}

func (f *FakeClient) ListPartitions(_ context.Context) ([]types.PartitionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]types.PartitionRecord, len(f.topology.Partitions))
	copy(out, f.topology.Partitions)

	return out, nil
}

func (f *FakeClient) UpdatePartitionsConfiguration(_ context.Context, changes []types.PartitionRecord) error {
	f.mu.Lock()
	top := f.mergeChanges(changes)
	f.topology = top
	watchers := make([]func(types.Topology), 0, len(f.topologyWatchers))
	for _, w := range f.topologyWatchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w(top)
	}

	return nil
}

func (f *FakeClient) Transfer(_ context.Context, fromSession string, keys []types.EventTypePartition) error {
	f.mu.Lock()
	removed := make(map[types.EventTypePartition]struct{}, len(keys))
	for _, k := range keys {
		removed[k] = struct{}{}
	}

	partitions := make([]types.PartitionRecord, 0, len(f.topology.Partitions))
	for _, p := range f.topology.Partitions {
		if p.Session == fromSession {
			if _, drop := removed[p.Key]; drop {
				p.Session = ""
				p.State = types.Unassigned
			}
		}
		partitions = append(partitions, p)
	}
	f.topology.Partitions = partitions
	f.topology.Version++
	top := f.topology

	watchers := make([]func(types.Topology), 0, len(f.topologyWatchers))
	for _, w := range f.topologyWatchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w(top)
	}

	return nil
}

func (f *FakeClient) RunLocked(_ context.Context, action func(ctx context.Context) error) error {
	f.mu.Lock()
	if f.locked {
		f.mu.Unlock()

		return types.NewCoordinationError("run_locked", types.ErrLockHeld)
	}
	f.locked = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.locked = false
		f.mu.Unlock()
	}()

	return action(context.Background())
}

// mergeChanges must be called with f.mu held.
func (f *FakeClient) mergeChanges(changes []types.PartitionRecord) types.Topology {
	byKey := make(map[types.EventTypePartition]types.PartitionRecord, len(f.topology.Partitions))
	for _, p := range f.topology.Partitions {
		byKey[p.Key] = p
	}
	for _, c := range changes {
		byKey[c.Key] = c
	}

	partitions := make([]types.PartitionRecord, 0, len(byKey))
	for _, p := range byKey {
		partitions = append(partitions, p)
	}

	return types.Topology{Version: f.topology.Version + 1, Partitions: partitions}
}

type fakeTopologyListener struct {
	client *FakeClient
	id     int
}

var _ coordination.TopologyListener = (*fakeTopologyListener)(nil)

func (l *fakeTopologyListener) Refresh(context.Context) error { return nil }

func (l *fakeTopologyListener) Close() error {
	l.client.mu.Lock()
	delete(l.client.topologyWatchers, l.id)
	l.client.mu.Unlock()

	return nil
}

func (l *fakeTopologyListener) Data(context.Context) (types.Topology, error) {
	return l.client.Topology(), nil
}

type fakeOffsetListener struct {
	client *FakeClient
	key    types.EventTypePartition
	id     int
}

var _ coordination.OffsetListener = (*fakeOffsetListener)(nil)

func (l *fakeOffsetListener) Refresh(context.Context) error { return nil }

func (l *fakeOffsetListener) Close() error {
	l.client.mu.Lock()
	delete(l.client.offsetWatchers[l.key], l.id)
	l.client.mu.Unlock()

	return nil
}

type fakeSessionListener struct {
	client *FakeClient
	id     int
}

var _ coordination.SessionListListener = (*fakeSessionListener)(nil)

func (l *fakeSessionListener) Refresh(context.Context) error { return nil }

func (l *fakeSessionListener) Close() error {
	l.client.mu.Lock()
	delete(l.client.sessionWatchers, l.id)
	l.client.mu.Unlock()

	return nil
}
