package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeySession   ctxKey = "session_id"
)

// WithRequestID stores a request ID for later extraction by ContextLogger.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// WithSessionID stores a session ID for later extraction by ContextLogger.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeySession, id)
}

// ContextLogger decorates log entries with identifiers carried in a context.
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext returns a logger annotated with any request/session IDs found
// in ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	fields := []zapcore.Field{}

	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok && id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctx.Value(ctxKeySession).(string); ok && id != "" {
		fields = append(fields, zap.String("session_id", id))
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// LogRequest logs an HTTP request with context.
func (cl *ContextLogger) LogRequest(ctx context.Context, method, path string, statusCode int, durationMs int64) {
	cl.WithContext(ctx).Info("http_request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
	)
}
