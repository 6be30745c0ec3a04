// Package lock implements the subscription-global mutual-exclusion
// primitive that coordination.Client.RunLocked builds on.
//
// Unlike a leader-election lease (a long-held claim renewed on an
// interval), this lock is acquired and released within the scope of a
// single RunLocked call: Create is the atomic acquire, a
// revision-checked Delete is the atomic release. There is no renewal
// loop because the critical sections this guards (rebalance, transfer)
// are short, synchronous coordination-store calls, not a standing
// leadership term.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/nakasess/types"
)

// Lock guards a single NATS JetStream KV key used as a mutual-exclusion
// token for one subscription's coordination store.
type Lock struct {
	kv     jetstream.KeyValue
	key    string
	logger types.Logger
}

// New returns a Lock over key in kv. key should be a dedicated node (the
// coordination store's "/subscriptions/{id}/lock") that nothing else
// reads or writes. logger may be nil, in which case release failures are
// silently dropped.
func New(kv jetstream.KeyValue, key string, logger types.Logger) *Lock {
	return &Lock{kv: kv, key: key, logger: logger}
}

// Run acquires the lock, runs action, and releases the lock before
// returning, regardless of whether action succeeded. If the lock is
// already held by another caller, Run returns types.ErrLockHeld without
// invoking action.
//
// Release uses a revision-checked delete so a caller whose acquisition
// raced with a TTL expiry and a second acquirer never deletes the
// second acquirer's claim.
func (l *Lock) Run(ctx context.Context, action func(ctx context.Context) error) error {
	rev, err := l.acquire(ctx)
	if err != nil {
		return err
	}

	defer l.release(rev)

	return action(ctx)
}

func (l *Lock) acquire(ctx context.Context) (uint64, error) {
	value := []byte(time.Now().UTC().Format(time.RFC3339Nano))

	rev, err := l.kv.Create(ctx, l.key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, types.ErrLockHeld
		}

		return 0, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}

	return rev, nil
}

// release deletes the lock key if it still matches the revision this
// call acquired. Errors are intentionally swallowed here: the caller has
// already committed to running (and returning the result of) action;
// a release that loses a race against TTL expiry self-heals once the
// stale key expires, and nothing downstream depends on release having
// succeeded synchronously.
func (l *Lock) release(rev uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.kv.Delete(ctx, l.key, jetstream.LastRevision(rev)); err != nil && l.logger != nil {
		l.logger.Warn("failed to release coordination lock", "key", l.key, "error", err)
	}
}
