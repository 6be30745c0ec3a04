package nakasess_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nakasess "github.com/arloliu/nakasess"
	nakasesstest "github.com/arloliu/nakasess/testing"
	nakasessfake "github.com/arloliu/nakasess/testing/fakeclient"
	"github.com/arloliu/nakasess/types"
)

type stateRecorder struct {
	mu    sync.Mutex
	names []string
	ch    chan string
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan string, 32)}
}

func (r *stateRecorder) record(_, to string) {
	r.mu.Lock()
	r.names = append(r.names, to)
	r.mu.Unlock()
	r.ch <- to
}

func (r *stateRecorder) waitFor(t *testing.T, name string, timeout time.Duration) {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case got := <-r.ch:
			if got == name {
				return
			}
		case <-deadline:
			r.mu.Lock()
			seen := append([]string(nil), r.names...)
			r.mu.Unlock()
			t.Fatalf("timed out waiting for state %q, saw %v", name, seen)
		}
	}
}

// TestStream_GracefulCloseWithNoOutstandingCommits runs a session
// end-to-end: it starts already owning a partition, so it moves
// straight through Starting into Streaming, and a graceful close with
// nothing outstanding to commit falls through Closing's fast path into
// Cleanup and Dead.
func TestStream_GracefulCloseWithNoOutstandingCommits(t *testing.T) {
	client := nakasessfake.NewFakeClient()
	pk := types.EventTypePartition{EventType: "et", PartitionID: "0"}
	sessionID := "integration-1"
	client.SetTopology(types.Topology{
		Version:    1,
		Partitions: []types.PartitionRecord{{Key: pk, Session: sessionID, State: types.Assigned}},
	})

	rec := newStateRecorder()
	cfg := nakasess.TestConfig()
	cfg.SubscriptionID = "sub-1"

	ctx := nakasess.New(cfg, client, types.Session{ID: sessionID}, nil,
		nakasess.WithLogger(nakasesstest.NewTestLogger(t)),
		nakasess.WithHooks(types.Hooks{OnStateChanged: rec.record}),
	)

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctx.Stream(runCtx) }()

	rec.waitFor(t, "streaming", 2*time.Second)

	ctx.RequestGracefulClose()

	rec.waitFor(t, "dead", 2*time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after reaching dead")
	}
}

// TestStream_ShutdownSwitchesStraightToCleanup exercises Shutdown() (the
// process-level trigger) and checks it never routes through the closing
// protocol, unlike RequestGracefulClose.
func TestStream_ShutdownSwitchesStraightToCleanup(t *testing.T) {
	client := nakasessfake.NewFakeClient()
	pk := types.EventTypePartition{EventType: "et", PartitionID: "0"}
	sessionID := "integration-2"
	client.SetTopology(types.Topology{
		Version:    1,
		Partitions: []types.PartitionRecord{{Key: pk, Session: sessionID, State: types.Assigned}},
	})

	rec := newStateRecorder()
	cfg := nakasess.TestConfig()
	cfg.SubscriptionID = "sub-1"

	ctx := nakasess.New(cfg, client, types.Session{ID: sessionID}, nil,
		nakasess.WithHooks(types.Hooks{OnStateChanged: rec.record}),
	)

	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctx.Stream(runCtx) }()

	rec.waitFor(t, "streaming", 2*time.Second)

	ctx.Shutdown()

	rec.waitFor(t, "dead", 2*time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after reaching dead")
	}

	rec.mu.Lock()
	seen := append([]string(nil), rec.names...)
	rec.mu.Unlock()

	assert.NotContains(t, seen, "closing")
	assert.Equal(t, []string{"starting", "streaming", "cleanup", "dead"}, seen)
}

// TestStream_NeverOwnsAnyPartition leaves the session parked in
// Starting until the run context is cancelled, confirming the
// task-loop exits cleanly even when the session never reaches
// Streaming.
func TestStream_NeverOwnsAnyPartition(t *testing.T) {
	client := nakasessfake.NewFakeClient()

	rec := newStateRecorder()
	cfg := nakasess.TestConfig()
	cfg.SubscriptionID = "sub-1"

	ctx := nakasess.New(cfg, client, types.Session{ID: "integration-3"}, nil,
		nakasess.WithHooks(types.Hooks{OnStateChanged: rec.record}),
	)

	runCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctx.Stream(runCtx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after context cancellation")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"starting"}, rec.names)
}
