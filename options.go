package nakasess

import "github.com/arloliu/nakasess/types"

// Option configures a StreamingContext with optional dependencies.
type Option func(*contextOptions)

type contextOptions struct {
	logger        types.Logger
	metrics       types.MetricsCollector
	writer        types.Writer
	converter     types.CursorConverter
	authWatcher   types.AuthorizationWatcher
	gate          types.ConsumptionGate
	hooks         types.Hooks
	shutdownHooks types.ShutdownHookRegistry
	timer         types.Timer
}

// WithLogger sets the structured logger. Compatible with
// zap.SugaredLogger and other structured loggers.
func WithLogger(logger types.Logger) Option {
	return func(o *contextOptions) { o.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *contextOptions) { o.metrics = metrics }
}

// WithWriter sets the client stream output sink.
func WithWriter(writer types.Writer) Option {
	return func(o *contextOptions) { o.writer = writer }
}

// WithCursorConverter overrides the default raw-offset-to-cursor
// converter.
func WithCursorConverter(converter types.CursorConverter) Option {
	return func(o *contextOptions) { o.converter = converter }
}

// WithAuthorizationWatcher sets the authorization-change watcher used by
// Starting.
func WithAuthorizationWatcher(watcher types.AuthorizationWatcher) Option {
	return func(o *contextOptions) { o.authWatcher = watcher }
}

// WithConsumptionGate sets the consumption gate Streaming consults on
// entry.
func WithConsumptionGate(gate types.ConsumptionGate) Option {
	return func(o *contextOptions) { o.gate = gate }
}

// WithHooks sets the session's optional lifecycle hooks.
func WithHooks(hooks types.Hooks) Option {
	return func(o *contextOptions) { o.hooks = hooks }
}

// WithShutdownHooks injects a custom ShutdownHookRegistry in place of
// the built-in in-process one, for embedders that want to wire this
// session's shutdown hook into their own process-level signal handling.
// StreamingContext.Shutdown only knows how to fire the built-in
// registry; an embedder supplying its own is responsible for invoking
// the hook it was handed itself.
func WithShutdownHooks(registry types.ShutdownHookRegistry) Option {
	return func(o *contextOptions) { o.shutdownHooks = registry }
}

// WithTimer overrides the real wall clock used to schedule the closing
// protocol's deadline and the task queue's idle wait. Tests substitute
// a fake types.Timer so a deadline-bounded test can be driven without a
// real sleep.
func WithTimer(timer types.Timer) Option {
	return func(o *contextOptions) { o.timer = timer }
}
