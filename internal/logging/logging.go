// Package logging builds the process logger and bridges it into the
// whatsmeow logging interface so protocol internals and HTTP glue share
// one output.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// New constructs the root logger for the given level (debug|info|warn|error).
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

// Wa wraps a zap logger in the whatsmeow logging interface. The module name
// becomes the zap logger name, and Sub appends to it.
func Wa(logger *zap.Logger, module string) waLog.Logger {
	return &waZap{s: logger.Named(module).WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type waZap struct {
	s *zap.SugaredLogger
}

func (w *waZap) Debugf(msg string, args ...interface{}) { w.s.Debugf(msg, args...) }
func (w *waZap) Infof(msg string, args ...interface{})  { w.s.Infof(msg, args...) }
func (w *waZap) Warnf(msg string, args ...interface{})  { w.s.Warnf(msg, args...) }
func (w *waZap) Errorf(msg string, args ...interface{}) { w.s.Errorf(msg, args...) }

func (w *waZap) Sub(module string) waLog.Logger {
	return &waZap{s: w.s.Named(module)}
}
