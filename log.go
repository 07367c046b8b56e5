package resolver

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging seam the iterator writes through.
// Grounded on haukened-rr-dns/internal/dns/common/log's Logger interface,
// narrowed to the levels the core actually uses.
type Logger interface {
	Debug(fields map[string]any, msg string)
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
}

type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger returns a Logger backed by zap, at the given minimum level.
func NewZapLogger(level zapcore.Level) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{l: l}
}

func toFields(fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (z *zapLogger) Debug(fields map[string]any, msg string) { z.l.Debug(msg, toFields(fields)...) }
func (z *zapLogger) Info(fields map[string]any, msg string)  { z.l.Info(msg, toFields(fields)...) }
func (z *zapLogger) Warn(fields map[string]any, msg string)  { z.l.Warn(msg, toFields(fields)...) }
func (z *zapLogger) Error(fields map[string]any, msg string) { z.l.Error(msg, toFields(fields)...) }

// nopLogger discards everything; used as the default so tests don't pay
// for zap setup unless a caller opts in via WithLogger.
type nopLogger struct{}

func (nopLogger) Debug(map[string]any, string) {}
func (nopLogger) Info(map[string]any, string)  {}
func (nopLogger) Warn(map[string]any, string)  {}
func (nopLogger) Error(map[string]any, string) {}
