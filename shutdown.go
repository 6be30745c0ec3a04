package nakasess

import (
	"io"
	"sync"

	"github.com/arloliu/nakasess/types"
)

// shutdownHooks is the in-process ShutdownHookRegistry implementation: a
// slice of callbacks protected by a mutex. Fire is idempotent so a
// caller wiring it into both an explicit Shutdown() call and an
// os/signal handler never double-runs the hooks.
type shutdownHooks struct {
	mu    sync.Mutex
	fns   []func()
	fired bool
}

var _ types.ShutdownHookRegistry = (*shutdownHooks)(nil)

func newShutdownHooks() *shutdownHooks {
	return &shutdownHooks{}
}

// Add implements types.ShutdownHookRegistry.
func (h *shutdownHooks) Add(fn func()) io.Closer {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.fns)
	h.fns = append(h.fns, fn)

	return &hookHandle{hooks: h, idx: idx}
}

// Fire runs every hook that has not been removed, in registration
// order. Idempotent: a second call is a no-op.
func (h *shutdownHooks) Fire() {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()

		return
	}
	h.fired = true
	fns := make([]func(), len(h.fns))
	copy(fns, h.fns)
	h.mu.Unlock()

	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

type hookHandle struct {
	hooks *shutdownHooks
	idx   int
}

func (h *hookHandle) Close() error {
	h.hooks.mu.Lock()
	defer h.hooks.mu.Unlock()

	if h.idx < len(h.hooks.fns) {
		h.hooks.fns[h.idx] = nil
	}

	return nil
}
