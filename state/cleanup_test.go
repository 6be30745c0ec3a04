package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/nakasess/types"
)

func TestCleanup_CleanCloseWritesCleanFrameAndSwitchesToDead(t *testing.T) {
	store := newFakeClient()
	store.SetTopology(assignedTopology("cu1", key("et", "0")))
	require.NoError(t, store.RegisterSession(context.Background(), types.Session{ID: "cu1"}))

	fc := newFakeCoordinator(store, "cu1", time.Minute)

	var kind string
	fc.writer = &capturingWriter{onTerminal: func(k string, _ error) { kind = k }}

	cl := NewCleanup(nil)
	cl.SetContext(fc)

	require.NoError(t, cl.OnEnter(context.Background()))

	assert.Equal(t, "clean", kind)
	require.Equal(t, 1, fc.switchCount())
	_, ok := fc.lastSwitch().(*Dead)
	assert.True(t, ok)
	assert.Len(t, fc.metrics.partitionsFreed, 0)

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCleanup_ErrorCloseWritesErrorFrame(t *testing.T) {
	store := newFakeClient()
	fc := newFakeCoordinator(store, "cu2", time.Minute)

	cl := NewCleanup(errors.New("boom"))
	cl.SetContext(fc)

	var captured struct {
		kind string
		err  error
	}
	writer := &capturingWriter{onTerminal: func(kind string, err error) {
		captured.kind = kind
		captured.err = err
	}}
	fc.writer = writer

	require.NoError(t, cl.OnEnter(context.Background()))

	assert.Equal(t, "error", captured.kind)
	require.Error(t, captured.err)
	assert.Equal(t, "boom", captured.err.Error())
}

func TestCleanup_TerminalFrameWrittenOnlyOnce(t *testing.T) {
	store := newFakeClient()
	fc := newFakeCoordinator(store, "cu3", time.Minute)

	var calls int
	fc.writer = &capturingWriter{onTerminal: func(string, error) { calls++ }}

	first := NewCleanup(nil)
	first.SetContext(fc)
	require.NoError(t, first.OnEnter(context.Background()))

	second := NewCleanup(errors.New("late error"))
	second.SetContext(fc)
	require.NoError(t, second.OnEnter(context.Background()))

	assert.Equal(t, 1, calls, "a later Cleanup entry must not overwrite the first terminal frame")
}

type capturingWriter struct {
	onTerminal func(kind string, err error)
}

func (w *capturingWriter) WriteEvents(context.Context, types.EventTypePartition, []byte) error {
	return nil
}

func (w *capturingWriter) WriteTerminal(_ context.Context, frame types.TerminalFrame) error {
	w.onTerminal(frame.Kind, frame.Err)

	return nil
}
