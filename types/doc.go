// Package types provides the core data model and shared interfaces for the
// per-session subscription streaming core.
//
// These types are kept separate from the root package and from the state
// package so that both can depend on them without importing each other.
//
// Key types:
//   - EventTypePartition: identity of a partition
//   - NakadiCursor: a totally-ordered offset position within a partition
//   - PartitionRecord / Topology: the coordination store's partition view
//   - Session: a single client stream's identity
//   - Logger / MetricsCollector / Hooks: ambient service interfaces
package types
