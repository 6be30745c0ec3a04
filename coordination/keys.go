package coordination

import "github.com/arloliu/nakasess/types"

// Key layout within a subscription's KV bucket: every coordination node
// lives as one key in a single bucket rather than one bucket per node
// type, since JetStream KV buckets are comparatively heavy to provision
// per-subscription-per-node.
const (
	topologyKey      = "topology"
	lockKey          = "lock"
	sessionKeyPrefix = "sessions."
	offsetKeyPrefix  = "offsets."

	sessionWatchFilter = "sessions.>"
)

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// offsetKey encodes a partition identity as a KV key. EventType and
// PartitionID are opaque strings owned by the event-storage backend;
// this binding simply joins them, which is sufficient as long as
// neither contains '.' or whitespace. A backend whose identifiers need
// escaping should wrap Client with its own key-safe encoding before
// handing values in.
func offsetKey(key types.EventTypePartition) string {
	return offsetKeyPrefix + key.EventType + "." + key.PartitionID
}
