package state

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/nakasess/coordination"
	"github.com/arloliu/nakasess/internal/clock"
	nakasessfake "github.com/arloliu/nakasess/testing/fakeclient"
	"github.com/arloliu/nakasess/types"
)

// fakeCoordinator is a minimal, synchronous Coordinator test double:
// AddTask runs its task immediately and ScheduleTask runs its task
// through timer (the real clock unless a test overrides the field with
// a nakasesstest.FakeTimer), so a test can drive a state's callbacks
// without a queue goroutine and still observe every resulting
// SwitchState call in order.
type fakeCoordinator struct {
	mu sync.Mutex

	store     coordination.Client
	session   types.Session
	logger    types.Logger
	metrics   *fakeMetrics
	writer    types.Writer
	hooks     types.Hooks
	gate      types.ConsumptionGate
	authW     types.AuthorizationWatcher
	converter types.CursorConverter
	timer     types.Timer

	switches        []State
	taskErrors      []error
	terminalWritten bool
	ctx             context.Context
}

func newFakeCoordinator(store coordination.Client, sessionID string, commitTimeout time.Duration) *fakeCoordinator {
	return &fakeCoordinator{
		store:     store,
		session:   types.Session{ID: sessionID, CommitTimeout: commitTimeout},
		logger:    &nopTestLogger{},
		metrics:   newFakeMetrics(),
		writer:    &nopTestWriter{},
		converter: &identityConverter{},
		timer:     clock.RealClock{},
		ctx:       context.Background(),
	}
}

func (f *fakeCoordinator) AddTask(task func() error) {
	if err := task(); err != nil {
		f.mu.Lock()
		f.taskErrors = append(f.taskErrors, err)
		f.mu.Unlock()
	}
}

func (f *fakeCoordinator) ScheduleTask(task func() error, delay time.Duration) {
	f.timer.AfterFunc(delay, func() {
		if err := task(); err != nil {
			f.mu.Lock()
			f.taskErrors = append(f.taskErrors, err)
			f.mu.Unlock()
		}
	})
}

func (f *fakeCoordinator) SwitchState(next State) {
	f.mu.Lock()
	f.switches = append(f.switches, next)
	f.mu.Unlock()
}

func (f *fakeCoordinator) lastSwitch() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.switches) == 0 {
		return nil
	}

	return f.switches[len(f.switches)-1]
}

func (f *fakeCoordinator) switchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.switches)
}

func (f *fakeCoordinator) SessionID() string                            { return f.session.ID }
func (f *fakeCoordinator) Session() types.Session                       { return f.session }
func (f *fakeCoordinator) Store() coordination.Client                   { return f.store }
func (f *fakeCoordinator) Logger() types.Logger                         { return f.logger }
func (f *fakeCoordinator) Metrics() types.MetricsCollector              { return f.metrics }
func (f *fakeCoordinator) CursorConverter() types.CursorConverter       { return f.converter }
func (f *fakeCoordinator) Writer() types.Writer                        { return f.writer }
func (f *fakeCoordinator) Hooks() types.Hooks                          { return f.hooks }
func (f *fakeCoordinator) AuthorizationWatcher() types.AuthorizationWatcher { return f.authW }
func (f *fakeCoordinator) ConsumptionGate() types.ConsumptionGate      { return f.gate }
func (f *fakeCoordinator) Context() context.Context                    { return f.ctx }

func (f *fakeCoordinator) WriteTerminalOnce(ctx context.Context, frame types.TerminalFrame) error {
	f.mu.Lock()
	if f.terminalWritten {
		f.mu.Unlock()

		return nil
	}
	f.terminalWritten = true
	f.mu.Unlock()

	return f.writer.WriteTerminal(ctx, frame)
}

func (f *fakeCoordinator) Rebalance() error { return nil }

var _ Coordinator = (*fakeCoordinator)(nil)

type nopTestLogger struct{}

func (*nopTestLogger) Debug(string, ...any) {}
func (*nopTestLogger) Info(string, ...any)  {}
func (*nopTestLogger) Warn(string, ...any)  {}
func (*nopTestLogger) Error(string, ...any) {}
func (*nopTestLogger) Fatal(string, ...any) {}

type nopTestWriter struct{}

func (*nopTestWriter) WriteEvents(context.Context, types.EventTypePartition, []byte) error {
	return nil
}
func (*nopTestWriter) WriteTerminal(context.Context, types.TerminalFrame) error { return nil }

// key builds the EventTypePartition for eventType and partitionID.
func key(eventType, partitionID string) types.EventTypePartition {
	return types.EventTypePartition{EventType: eventType, PartitionID: partitionID}
}

// identityConverter parses the raw offset, written by tests as an
// unsigned base-10 string. Unlike the root package's default converter
// it rejects any sign character and reads the empty string as 0.
type identityConverter struct{}

func (*identityConverter) Convert(_ string, rawOffset string) (types.NakadiCursor, error) {
	var n int64
	for _, c := range rawOffset {
		if c < '0' || c > '9' {
			return types.NakadiCursor{}, types.NewParseError(rawOffset, nil)
		}
		n = n*10 + int64(c-'0')
	}

	return types.NakadiCursor{Offset: n}, nil
}

type fakeMetrics struct {
	mu sync.Mutex

	closeEntered      []int
	partitionsFreed   []string
	deadlinesExpired  []int
	listenerFailures  int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{} }

func (m *fakeMetrics) RecordStateTransition(string, string, float64) {}
func (m *fakeMetrics) RecordTerminalFrame(string)                    {}

func (m *fakeMetrics) RecordCloseEntered(n int) {
	m.mu.Lock()
	m.closeEntered = append(m.closeEntered, n)
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordPartitionFreed(reason string) {
	m.mu.Lock()
	m.partitionsFreed = append(m.partitionsFreed, reason)
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordDeadlineExpired(remaining int) {
	m.mu.Lock()
	m.deadlinesExpired = append(m.deadlinesExpired, remaining)
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordStoreOperationDuration(string, float64) {}

func (m *fakeMetrics) RecordListenerCancelFailure() {
	m.mu.Lock()
	m.listenerFailures++
	m.mu.Unlock()
}

var _ types.MetricsCollector = (*fakeMetrics)(nil)

// newFakeClient is a thin wrapper kept local to this package's tests so
// they read as self-contained; it just forwards to the shared test
// double.
func newFakeClient() *nakasessfake.FakeClient { return nakasessfake.NewFakeClient() }
