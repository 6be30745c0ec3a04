package nakasess

import (
	"context"

	"github.com/arloliu/nakasess/types"
)

// Rebalancer computes the changeset a rebalance should write, given the
// currently registered sessions and the full partition topology. The
// rebalancing algorithm itself is out of scope for this core; this is
// only the interface by which the core invokes it. An empty
// return means no change is needed; StreamingContext.Rebalance skips the
// write entirely in that case.
type Rebalancer func(ctx context.Context, sessions []types.Session, partitions []types.PartitionRecord) []types.PartitionRecord
