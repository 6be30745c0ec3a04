package nakasess

import (
	"context"

	"github.com/arloliu/nakasess/types"
)

// NopWriter discards every frame. Used as the default Writer so the
// coordinator never needs a nil check at a call site, and in tests that
// don't assert on stream output.
type NopWriter struct{}

var _ types.Writer = NopWriter{}

func (NopWriter) WriteEvents(context.Context, types.EventTypePartition, []byte) error {
	return nil
}

func (NopWriter) WriteTerminal(context.Context, types.TerminalFrame) error {
	return nil
}
