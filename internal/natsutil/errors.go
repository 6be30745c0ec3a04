package natsutil

import (
	"errors"
	"strings"

	"github.com/arloliu/nakasess/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// IsConnectivityError reports whether err stems from a transport problem
// (timeout, disconnect, connection refused) rather than a logical failure
// of a JetStream KV call (revision conflict, key not found). The
// coordination package uses this to decide whether a failed store call
// should carry types.ErrConnectivity when wrapped into a CoordinationError.
//
// Kept in internal/natsutil to avoid importing NATS dependencies in the
// types package.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	// Check for known connectivity error types
	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsNoKeysFoundError reports whether err is jetstream's "no keys found"
// response to KeyValue.Keys on an empty bucket. nats.go surfaces this as
// a plain message rather than a typed sentinel, so callers that list
// keys (coordination's session registry scan) treat a matching message
// as an empty result instead of a failure.
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}

	return strings.Contains(err.Error(), "no keys found")
}
