package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZap(zap.New(core).Sugar())

	l.Debug("starting", "session", "s1")
	l.Info("streaming", "session", "s1", "partitions", 3)
	l.Warn("slow commit", "session", "s1")
	l.Error("coordination failure", "session", "s1", "err", "timeout")

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, "starting", entries[0].Message)
	require.Equal(t, zap.DebugLevel, entries[0].Level)
	require.Equal(t, zap.ErrorLevel, entries[3].Level)
}

func TestNopLogger(t *testing.T) {
	var l NopLogger
	require.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x", "k", "v")
		l.Warn("x")
		l.Error("x")
	})
}
