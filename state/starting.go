package state

import (
	"context"
	"io"

	"github.com/arloliu/nakasess/coordination"
	"github.com/arloliu/nakasess/types"
)

// Starting registers the session, installs the session-list watch that
// drives rebalancing, subscribes to authorization changes, and switches
// to Streaming once this session owns at least one partition. The
// rebalancing algorithm that produces that first assignment is out of
// scope for this core; Starting only detects its result.
type Starting struct {
	baseState

	sessionListener  coordination.SessionListListener
	topologyListener coordination.TopologyListener
	authCloser       io.Closer
	switched         bool
}

var _ State = (*Starting)(nil)

// NewStarting constructs a Starting state.
func NewStarting() *Starting { return &Starting{} }

func (s *Starting) Name() string { return "starting" }

func (s *Starting) OnEnter(ctx context.Context) error {
	c := s.ctx

	if err := c.Store().RegisterSession(ctx, c.Session()); err != nil {
		return err
	}

	sessionListener, err := c.Store().SubscribeForSessionListChanges(ctx, func() {
		c.AddTask(c.Rebalance)
	})
	if err != nil {
		return err
	}
	s.sessionListener = sessionListener

	topologyListener, err := c.Store().SubscribeForTopologyChanges(ctx, func(_ types.Topology) {
		c.AddTask(func() error { return s.checkAssigned(c.Context()) })
	})
	if err != nil {
		return err
	}
	s.topologyListener = topologyListener

	if aw := c.AuthorizationWatcher(); aw != nil {
		closer, err := aw.Watch(ctx, c.Session(), func() {
			// Re-checking authorization decisions is out of scope here;
			// this only keeps the hook point alive so a backend that
			// cares can observe the change via its own
			// AuthorizationWatcher implementation.
		})
		if err != nil {
			c.Logger().Warn("failed to subscribe for authorization changes", "error", err)
		} else {
			s.authCloser = closer
		}
	}

	// A freshly joined session may be the only one in the registry;
	// kick a rebalance immediately rather than waiting for some other
	// session's membership change to trigger one.
	c.AddTask(c.Rebalance)

	return s.checkAssigned(ctx)
}

func (s *Starting) checkAssigned(ctx context.Context) error {
	if s.switched {
		return nil
	}

	c := s.ctx

	top, err := s.topologyListener.Data(ctx)
	if err != nil {
		return err
	}

	if len(top.OwnedBy(c.SessionID())) == 0 {
		return nil
	}

	s.switched = true
	c.SwitchState(NewStreaming())

	return nil
}

func (s *Starting) OnExit(ctx context.Context) {
	c := s.ctx

	if s.sessionListener != nil {
		if err := s.sessionListener.Close(); err != nil {
			c.Logger().Warn("failed to close session-list listener", "error", err)
		}
		s.sessionListener = nil
	}

	if s.topologyListener != nil {
		if err := s.topologyListener.Close(); err != nil {
			c.Logger().Warn("failed to close topology listener", "error", err)
		}
		s.topologyListener = nil
	}

	if s.authCloser != nil {
		if err := s.authCloser.Close(); err != nil {
			c.Logger().Warn("failed to close authorization watcher", "error", err)
		}
		s.authCloser = nil
	}
}
