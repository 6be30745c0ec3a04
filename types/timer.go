package types

import "time"

// Timer abstracts the wall clock used to schedule delayed work, so a
// deadline-bounded protocol like the closing state's partition handoff
// can be driven by a fake clock in tests instead of a real sleep.
//
// Compatible with the real clock by default; WithTimer substitutes an
// alternative implementation.
type Timer interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc arranges for f to run after d has elapsed (the real clock
	// runs f on its own goroutine; a fake clock may run it synchronously
	// when advanced). The returned cancel func stops the pending call; it
	// returns false if f has already run or was already stopped.
	AfterFunc(d time.Duration, f func()) func() bool
}
