package logging

import (
	"os"

	"github.com/arloliu/nakasess/types"
)

// NopLogger discards everything. Used as the default when no logger is
// configured, so call sites never need a nil check.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// Fatal discards the message but still calls os.Exit(1), matching
// types.Logger's contract that Fatal exits even when logging is
// disabled.
func (NopLogger) Fatal(string, ...any) { os.Exit(1) }
