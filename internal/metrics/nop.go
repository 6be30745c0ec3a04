package metrics

import "github.com/arloliu/nakasess/types"

// NopMetrics implements types.MetricsCollector with no-op calls. It is the
// default when no collector is supplied, so the coordinator never needs a
// nil check at a call site.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a metrics collector that discards everything.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// StateMetrics implementation

func (n *NopMetrics) RecordStateTransition(_, _ string, _ float64) {}
func (n *NopMetrics) RecordTerminalFrame(_ string)                 {}

// ClosingMetrics implementation

func (n *NopMetrics) RecordCloseEntered(_ int)      {}
func (n *NopMetrics) RecordPartitionFreed(_ string) {}
func (n *NopMetrics) RecordDeadlineExpired(_ int)   {}

// CoordinationMetrics implementation

func (n *NopMetrics) RecordStoreOperationDuration(_ string, _ float64) {}
func (n *NopMetrics) RecordListenerCancelFailure()                     {}
