package nakasess

import (
	"context"
	"io"

	"github.com/arloliu/nakasess/types"
)

// NopAuthorizationWatcher never fires onChange and never errors. It is
// the default AuthorizationWatcher: most deployments embedding this
// core make authorization decisions out-of-band, so this only needs to
// exist so Starting never has to nil-check it.
type NopAuthorizationWatcher struct{}

var _ types.AuthorizationWatcher = NopAuthorizationWatcher{}

func (NopAuthorizationWatcher) Watch(context.Context, types.Session, func()) (io.Closer, error) {
	return nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
