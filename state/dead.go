package state

import "context"

// Dead is the sentinel terminal state. Its OnEnter does nothing; it is
// the coordinator's task-loop exit condition, checked by type (any
// *Dead), that actually stops the loop.
type Dead struct {
	baseState
}

var _ State = (*Dead)(nil)

// NewDead constructs the sentinel Dead state.
func NewDead() *Dead { return &Dead{} }

func (d *Dead) Name() string { return "dead" }

func (d *Dead) OnEnter(_ context.Context) error { return nil }

func (d *Dead) OnExit(_ context.Context) {}
