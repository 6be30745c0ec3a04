package types

import (
	"context"
	"io"
)

// AuthorizationWatcher is the seam by which Starting registers interest
// in authorization changes for a session (and closes the watch again on
// exit), without this core owning the authorization decision itself.
type AuthorizationWatcher interface {
	// Watch installs a watch that calls onChange whenever the
	// authorization rules relevant to session may have changed.
	// onChange must do nothing but enqueue a task.
	Watch(ctx context.Context, session Session, onChange func()) (io.Closer, error)
}

// ConsumptionGate is a blacklist-style veto consulted when entering
// Streaming. The decision itself is out of scope for this core; this
// only carries the extension point.
type ConsumptionGate interface {
	// Blocked reports whether session's subscription is currently
	// barred from consuming.
	Blocked(session Session) bool
}

// ShutdownHookRegistry lets the root package install a callback that
// runs on process shutdown. The callable registered through Add must do
// nothing but enqueue a task.
type ShutdownHookRegistry interface {
	Add(fn func()) io.Closer
}
