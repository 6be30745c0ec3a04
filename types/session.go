package types

import (
	"time"

	"github.com/google/uuid"
)

// StreamLimits bounds a single client stream's delivery behavior. The
// actual poll/read path that enforces these lives outside this package;
// they are carried here because Session is part of the data the
// coordination store and the closing protocol need to see.
type StreamLimits struct {
	// MaxUncommittedEvents bounds how far the stream may run ahead of
	// the client's commits before backpressure applies.
	MaxUncommittedEvents int

	// BatchFlushTimeout bounds how long a partially-filled batch is
	// held before being flushed to the client.
	BatchFlushTimeout time.Duration
}

// Session is a single connected client stream's identity within a
// subscription. ID is unique across the cluster.
type Session struct {
	ID            string       `json:"id"`
	StreamLimits  StreamLimits `json:"stream_limits"`
	CommitTimeout time.Duration `json:"commit_timeout"`
}

// NewSessionID generates a new cluster-unique session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
