package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	nakasesstest "github.com/arloliu/nakasess/testing"
	"github.com/arloliu/nakasess/types"
)

func newTestClient(t *testing.T) *NATSClient {
	t.Helper()

	_, nc := nakasesstest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	c, err := NewNATSClient(context.Background(), js, "sub-1", nakasesstest.NewTestLogger(t))
	require.NoError(t, err)

	return c
}

func TestNATSClient_RegisterUnregisterSession(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	session := types.Session{ID: "session-a"}
	require.NoError(t, c.RegisterSession(ctx, session))

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "session-a", sessions[0].ID)

	require.NoError(t, c.UnregisterSession(ctx, "session-a"))

	sessions, err = c.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, sessions)

	// Idempotent.
	require.NoError(t, c.UnregisterSession(ctx, "session-a"))
}

func TestNATSClient_UpdatePartitionsConfiguration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	keyA := types.EventTypePartition{EventType: "orders", PartitionID: "0"}
	require.NoError(t, c.UpdatePartitionsConfiguration(ctx, []types.PartitionRecord{
		{Key: keyA, Session: "session-a", State: types.Assigned},
	}))

	partitions, err := c.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	require.Equal(t, "session-a", partitions[0].Session)
	require.Equal(t, types.Assigned, partitions[0].State)

	// A second call merges rather than duplicating the existing key.
	keyB := types.EventTypePartition{EventType: "orders", PartitionID: "1"}
	require.NoError(t, c.UpdatePartitionsConfiguration(ctx, []types.PartitionRecord{
		{Key: keyB, Session: "session-a", State: types.Assigned},
	}))

	partitions, err = c.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, partitions, 2)
}

func TestNATSClient_Transfer(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	keyA := types.EventTypePartition{EventType: "orders", PartitionID: "0"}
	keyB := types.EventTypePartition{EventType: "orders", PartitionID: "1"}
	require.NoError(t, c.UpdatePartitionsConfiguration(ctx, []types.PartitionRecord{
		{Key: keyA, Session: "session-a", State: types.Assigned},
		{Key: keyB, Session: "session-a", State: types.Assigned},
	}))

	require.NoError(t, c.Transfer(ctx, "session-a", []types.EventTypePartition{keyA}))

	partitions, err := c.ListPartitions(ctx)
	require.NoError(t, err)

	byKey := map[types.EventTypePartition]types.PartitionRecord{}
	for _, p := range partitions {
		byKey[p.Key] = p
	}

	require.Equal(t, types.Unassigned, byKey[keyA].State)
	require.Empty(t, byKey[keyA].Session)
	require.Equal(t, types.Assigned, byKey[keyB].State)
	require.Equal(t, "session-a", byKey[keyB].Session)
}

func TestNATSClient_RunLocked(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	var ran bool
	err := c.RunLocked(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestNATSClient_RunLocked_ExcludesConcurrent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.RunLocked(ctx, func(ctx context.Context) error {
			close(started)
			<-release

			return nil
		})
	}()

	<-started

	// The lock is held by the goroutine above; a second RunLocked must
	// fail fast rather than block.
	err := c.RunLocked(ctx, func(ctx context.Context) error {
		t.Fatal("action must not run while the lock is held")
		return nil
	})
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrLockHeld)

	close(release)
	require.NoError(t, <-errCh)
}

func TestNATSClient_GetOffset_NotFound(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetOffset(ctx, types.EventTypePartition{EventType: "orders", PartitionID: "0"})
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrNoSuchPartition)
}

func TestNATSClient_SubscribeForTopologyChanges(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	changes := make(chan types.Topology, 4)
	l, err := c.SubscribeForTopologyChanges(ctx, func(top types.Topology) { changes <- top })
	require.NoError(t, err)
	defer l.Close()

	keyA := types.EventTypePartition{EventType: "orders", PartitionID: "0"}
	require.NoError(t, c.UpdatePartitionsConfiguration(ctx, []types.PartitionRecord{
		{Key: keyA, Session: "session-a", State: types.Assigned},
	}))

	select {
	case top := <-changes:
		require.Len(t, top.Partitions, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for topology change notification")
	}

	data, err := l.Data(ctx)
	require.NoError(t, err)
	require.Len(t, data.Partitions, 1)
}

func TestNATSClient_SubscribeForOffsetChanges(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	key := types.EventTypePartition{EventType: "orders", PartitionID: "0"}
	fired := make(chan struct{}, 4)
	l, err := c.SubscribeForOffsetChanges(ctx, key, func() { fired <- struct{}{} })
	require.NoError(t, err)
	defer l.Close()

	_, err = c.kv.Put(ctx, offsetKey(key), []byte("42"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for offset change notification")
	}

	offset, err := c.GetOffset(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "42", offset)
}
