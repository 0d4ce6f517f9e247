package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger stored by WithTraceContext
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// TraceIDFromContext returns the trace id stored by WithTraceContext
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it.
// An existing trace id on ctx is reused.
func WithTraceContext(ctx context.Context, base *Logger) (context.Context, *Logger) {
	if base == nil {
		base = Default()
	}
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	l := base.WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// ContextWithTraceID stores an externally supplied trace id (e.g. X-Trace-ID)
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// SignalContext creates a logger context for signal generation
func SignalContext(l *Logger, symbol, timeframe string) *Logger {
	return l.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
	}).WithComponent("signal")
}

// WeightsContext creates a logger context for the adaptive weight engine
func WeightsContext(l *Logger, proposalID string) *Logger {
	return l.WithField("proposal_id", proposalID).WithComponent("weights")
}

// GuardContext creates a logger context for news/time guard checks
func GuardContext(l *Logger, symbol string) *Logger {
	return l.WithField("symbol", symbol).WithComponent("timeguard")
}

// MarketDataContext creates a logger context for market-data fetches
func MarketDataContext(l *Logger, provider, symbol, timeframe string) *Logger {
	return l.WithFields(map[string]interface{}{
		"provider":  provider,
		"symbol":    symbol,
		"timeframe": timeframe,
	}).WithComponent("market")
}

// APIContext creates a logger context for API operations
func APIContext(l *Logger, method, route string, statusCode int) *Logger {
	return l.WithFields(map[string]interface{}{
		"method":      method,
		"route":       route,
		"status_code": statusCode,
	}).WithComponent("api")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}
