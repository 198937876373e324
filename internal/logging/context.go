package logging

import "context"

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	operationKey contextKey = "operation"
)

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, falls back to global
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return global
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithOperation tags the context with the analytics operation being served
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey, operation)
}

func extractContextFields(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}

	var fields []interface{}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, "request_id", id)
	}
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		fields = append(fields, "operation", op)
	}
	return fields
}
