package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
	unitIDKey    contextKey = "unit_id"
)

// WithRequestID stores the request (or trace) ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUnitID stores the id of the unit being reconciled so that outbound
// calls and log lines can be cross-referenced across retries.
func WithUnitID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, unitIDKey, id)
}

// GetUnitID retrieves the unit id from the context.
func GetUnitID(ctx context.Context) string {
	id, _ := ctx.Value(unitIDKey).(string)
	return id
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the Logger from the context.
// Returns nil if no logger has been set.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}
