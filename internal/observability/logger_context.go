// Package observability carries request-scoped logging context across layers.
package observability

import (
	"context"
	"log/slog"
)

type (
	loggerKey    struct{}
	requestIDKey struct{}
	operationKey struct{}
)

// ContextWithLogger attaches a non-nil logger to the context.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, lg)
}

// LoggerFromContext returns the request logger, or slog.Default when none is set.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if lg, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && lg != nil {
		return lg
	}
	return slog.Default()
}

// ContextWithRequestID stores the originating request id so notifications and
// model calls can be correlated with the HTTP request that caused them.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// ContextWithOperation names the orchestration step issuing a model call
// (generate_questions, evaluate_answer, summarize_session). Used as a metric label.
func ContextWithOperation(ctx context.Context, op string) context.Context {
	if ctx == nil || op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the operation name or "generate".
func OperationFromContext(ctx context.Context) string {
	if ctx == nil {
		return "generate"
	}
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "generate"
}
