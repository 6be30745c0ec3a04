// Package clock provides the default types.Timer implementation used
// by the task queue when no embedder-supplied timer is configured.
package clock

import (
	"time"

	"github.com/arloliu/nakasess/types"
)

// RealClock implements types.Timer against the actual wall clock.
type RealClock struct{}

var _ types.Timer = RealClock{}

// Now implements types.Timer.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements types.Timer.
func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)

	return t.Stop
}
