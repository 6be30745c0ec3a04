// Package sessionlease keeps a session's coordination-store membership
// node alive for as long as the session is running.
//
// Some coordination stores model session registration as an ephemeral
// ZooKeeper node: it disappears automatically when the session's
// connection drops. NATS JetStream KV has no equivalent ephemeral-node
// primitive, only per-key TTL, so a registered session must
// periodically touch its own key or the bucket will expire it out from
// under a session that is still alive. Lease provides that heartbeat
// with a Start/Stop/background-ticker shape.
package sessionlease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Common errors for lease operations.
var (
	ErrNotStarted     = errors.New("lease not started")
	ErrAlreadyStarted = errors.New("lease already started")
)

// Lease periodically renews a single KV key so the bucket's TTL never
// expires it while the lease is running.
type Lease struct {
	kv       jetstream.KeyValue
	key      string
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	value   func() []byte
}

// New creates a Lease over key in kv, renewed every interval. value is
// called on every renewal to produce the KV payload (typically a
// timestamp or the session's JSON encoding); it must be cheap and
// non-blocking since it runs on the lease's own timer goroutine.
func New(kv jetstream.KeyValue, key string, interval time.Duration, value func() []byte) *Lease {
	return &Lease{kv: kv, key: key, interval: interval, value: value}
}

// Start writes the initial value and begins the background renewal
// loop. Returns ErrAlreadyStarted if called twice without an
// intervening Stop.
func (l *Lease) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}

	if _, err := l.kv.Put(ctx, l.key, l.value()); err != nil {
		return fmt.Errorf("initial lease write for %s: %w", l.key, err)
	}

	l.started = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go l.renewLoop(l.stopCh, l.doneCh)

	return nil
}

// Stop halts the renewal loop and deletes the key so membership ends
// immediately rather than waiting for the bucket's TTL.
func (l *Lease) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()

		return ErrNotStarted
	}

	close(l.stopCh)
	doneCh := l.doneCh
	l.started = false
	l.mu.Unlock()

	<-doneCh

	if err := l.kv.Delete(ctx, l.key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete lease key %s: %w", l.key, err)
	}

	return nil
}

func (l *Lease) renewLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, _ = l.kv.Put(ctx, l.key, l.value())
			cancel()
		}
	}
}
