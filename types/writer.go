package types

import "context"

// TerminalFrame is the single frame Cleanup writes before the session
// dies: either a clean close or a structured error derived from the
// first fatal error the session encountered.
type TerminalFrame struct {
	// Kind is "clean" or "error".
	Kind string
	// Err is nil for a clean close.
	Err error
}

// Writer is the opaque client stream output sink. The actual wire
// framing and transport are out of scope for this core;
// only WriteTerminal is exercised here, by Cleanup. WriteEvents is
// carried so Streaming has a concrete place to hand delivered events to,
// even though the poll/read path that produces them is out of scope.
type Writer interface {
	// WriteEvents delivers a batch of already-encoded event payloads for
	// key to the client.
	WriteEvents(ctx context.Context, key EventTypePartition, payload []byte) error

	// WriteTerminal writes the session's final frame.
	WriteTerminal(ctx context.Context, frame TerminalFrame) error
}
