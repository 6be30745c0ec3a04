package nakasesstest

import (
	"sort"
	"sync"
	"time"

	"github.com/arloliu/nakasess/types"
)

// FakeTimer is a manually-advanced types.Timer for deterministic tests
// of deadline-bounded behavior: callbacks registered with AfterFunc
// never fire on a real wall-clock timer, only when the test calls
// Advance past their deadline.
type FakeTimer struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	pending map[int]*fakeTimerEntry
}

type fakeTimerEntry struct {
	fireAt time.Time
	fn     func()
}

// NewFakeTimer returns a FakeTimer whose clock starts at start.
func NewFakeTimer(start time.Time) *FakeTimer {
	return &FakeTimer{now: start, pending: make(map[int]*fakeTimerEntry)}
}

var _ types.Timer = (*FakeTimer)(nil)

// Now implements types.Timer.
func (f *FakeTimer) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

// AfterFunc implements types.Timer.
func (f *FakeTimer) AfterFunc(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.pending[id] = &fakeTimerEntry{fireAt: f.now.Add(d), fn: fn}
	f.mu.Unlock()

	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()

		if _, ok := f.pending[id]; !ok {
			return false
		}
		delete(f.pending, id)

		return true
	}
}

// Advance moves the fake clock forward by d and synchronously runs
// every callback now due, in the order it was registered.
func (f *FakeTimer) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)

	var ids []int
	for id, e := range f.pending {
		if !e.fireAt.After(f.now) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	due := make([]*fakeTimerEntry, 0, len(ids))
	for _, id := range ids {
		due = append(due, f.pending[id])
		delete(f.pending, id)
	}
	f.mu.Unlock()

	for _, e := range due {
		e.fn()
	}
}
