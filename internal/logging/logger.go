package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type requestIDKey struct{}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request id from ctx.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// Logger provides request-scoped structured logging for services
type Logger struct {
	z *zap.Logger
}

// FromContext returns a logger tagged with the request id carried by ctx, if any.
func FromContext(ctx context.Context, base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	if rid := RequestID(ctx); rid != "" {
		base = base.With(zap.String("request_id", rid))
	}
	return &Logger{z: base}
}

// Zap exposes the underlying logger for field-rich calls.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

func (l *Logger) Error(operation string, err error) {
	l.z.Error(operation, zap.String("operation", operation), zap.Error(err))
}

func (l *Logger) Warnf(operation string, format string, args ...interface{}) {
	l.z.Warn(fmt.Sprintf(format, args...), zap.String("operation", operation))
}

func (l *Logger) Infof(operation string, format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...), zap.String("operation", operation))
}

func (l *Logger) Debugf(operation string, format string, args ...interface{}) {
	l.z.Debug(fmt.Sprintf(format, args...), zap.String("operation", operation))
}
