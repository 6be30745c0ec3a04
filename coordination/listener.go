package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/nakasess/types"
)

// baseListener owns a jetstream.KeyWatcher and the goroutine draining
// it. Both topologyListener and simpleListener embed it.
type baseListener struct {
	watcher jetstream.KeyWatcher

	mu     sync.Mutex
	closed bool
}

func (l *baseListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	return l.watcher.Stop()
}

func (l *baseListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

// simpleListener backs OffsetListener and SessionListListener: it only
// needs to fire handler on every update, with no cached snapshot.
type simpleListener struct {
	baseListener

	kv  jetstream.KeyValue
	key string
}

var (
	_ OffsetListener      = (*simpleListener)(nil)
	_ SessionListListener = (*simpleListener)(nil)
)

func watchSimple(ctx context.Context, kv jetstream.KeyValue, filter string, handler func()) (*simpleListener, error) {
	watcher, err := kv.Watch(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", filter, err)
	}

	l := &simpleListener{kv: kv, key: filter}
	l.watcher = watcher

	go l.run(handler)

	return l, nil
}

func (l *simpleListener) run(handler func()) {
	for entry := range l.watcher.Updates() {
		if entry == nil {
			// Marks the end of the initial-history replay; not itself
			// a change worth reacting to.
			continue
		}
		if l.isClosed() {
			return
		}
		handler()
	}
}

// Refresh performs a one-shot resync; the underlying watch is always
// armed, so there is nothing to re-arm, but a caller's code path that
// expects a Refresh step before trusting the next read still works
// unchanged.
func (l *simpleListener) Refresh(ctx context.Context) error {
	if l.isClosed() {
		return types.ErrListenerClosed
	}

	_, err := l.kv.Get(ctx, l.key)
	if err != nil && err != jetstream.ErrKeyNotFound { //nolint:errorlint // sentinel comparison mirrors jetstream's own convention
		return fmt.Errorf("refresh %s: %w", l.key, err)
	}

	return nil
}

// topologyListener backs TopologyListener: it caches the latest decoded
// Topology so Data() can return it without a round trip.
type topologyListener struct {
	baseListener

	kv jetstream.KeyValue

	mu      sync.Mutex
	current types.Topology
	have    bool
}

var _ TopologyListener = (*topologyListener)(nil)

func watchTopology(ctx context.Context, kv jetstream.KeyValue, handler func(types.Topology)) (*topologyListener, error) {
	watcher, err := kv.Watch(ctx, topologyKey)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", topologyKey, err)
	}

	l := &topologyListener{kv: kv}
	l.watcher = watcher

	go l.run(handler)

	return l, nil
}

func (l *topologyListener) run(handler func(types.Topology)) {
	for entry := range l.watcher.Updates() {
		if entry == nil {
			continue
		}
		if l.isClosed() {
			return
		}

		var top types.Topology
		if err := json.Unmarshal(entry.Value(), &top); err != nil {
			// A corrupt topology node is a coordination-store level
			// problem outside this listener's contract; drop the
			// update rather than delivering a zero-value topology that
			// would look like "no partitions owned by anyone".
			continue
		}

		l.mu.Lock()
		l.current = top
		l.have = true
		l.mu.Unlock()

		handler(top)
	}
}

func (l *topologyListener) Refresh(ctx context.Context) error {
	if l.isClosed() {
		return types.ErrListenerClosed
	}

	top, err := l.readLatest(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.current = top
	l.have = true
	l.mu.Unlock()

	return nil
}

func (l *topologyListener) Data(ctx context.Context) (types.Topology, error) {
	if l.isClosed() {
		return types.Topology{}, types.ErrListenerClosed
	}

	l.mu.Lock()
	top, have := l.current, l.have
	l.mu.Unlock()

	if have {
		return top, nil
	}

	return l.readLatest(ctx)
}

func (l *topologyListener) readLatest(ctx context.Context) (types.Topology, error) {
	entry, err := l.kv.Get(ctx, topologyKey)
	if err != nil {
		if err == jetstream.ErrKeyNotFound { //nolint:errorlint // sentinel comparison mirrors jetstream's own convention
			return types.Topology{}, nil
		}

		return types.Topology{}, fmt.Errorf("get %s: %w", topologyKey, err)
	}

	var top types.Topology
	if err := json.Unmarshal(entry.Value(), &top); err != nil {
		return types.Topology{}, fmt.Errorf("decode %s: %w", topologyKey, err)
	}

	return top, nil
}
