// Package nakasess implements the per-session streaming core of a
// partitioned event-subscription service: the session-local state
// machine and its coordinator that owns a single client's streaming
// lifecycle, cooperates with a distributed coordination store for
// partition rebalancing, and guarantees clean handoff of partitions when
// the session is closing.
//
// StreamingContext (this package) is the coordinator: it holds the
// current lifecycle state, drives the single-consumer task queue in
// internal/queue, and exposes the primitives every state.State
// implementation needs (package state). The coordination store is
// abstracted behind coordination.Client, with a NATS JetStream KV
// binding.
//
// A typical embedder constructs a coordination.Client, a types.Session,
// and a Rebalancer, builds a StreamingContext with New, and calls
// Stream to run the session to completion.
package nakasess
