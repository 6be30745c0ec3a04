// Package logging provides the default types.Logger implementation used
// by the session coordinator.
package logging

import (
	"go.uber.org/zap"

	"github.com/arloliu/nakasess/types"
)

// ZapLogger implements types.Logger on top of a zap.SugaredLogger.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

var _ types.Logger = (*ZapLogger)(nil)

// NewZap wraps an existing *zap.SugaredLogger.
func NewZap(logger *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

// NewZapProduction builds a ZapLogger from zap's production defaults
// (JSON output, info level). It panics if zap's own construction fails,
// which only happens for a misconfigured encoder/sink and indicates a
// programmer error in deployment config rather than a runtime condition
// callers should handle.
func NewZapProduction() *ZapLogger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	return &ZapLogger{logger: l.Sugar()}
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warnw(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *ZapLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Fatalw(msg, keysAndValues...)
}
