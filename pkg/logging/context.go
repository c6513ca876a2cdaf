package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

// Keys of the request-scoped values copied onto every log line.
const (
	RequestIDKey     contextKey = "requestId"
	CorrelationIDKey contextKey = "correlationId"
	TraceIDKey       contextKey = "traceId"
	ActorIDKey       contextKey = "actorId"
	ActorRoleKey     contextKey = "actorRole"
)

var scopedKeys = [...]contextKey{RequestIDKey, CorrelationIDKey, TraceIDKey, ActorIDKey, ActorRoleKey}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ContextWithActor records who is acting on the request.
func ContextWithActor(ctx context.Context, actorID, role string) context.Context {
	return context.WithValue(context.WithValue(ctx, ActorIDKey, actorID), ActorRoleKey, role)
}

// WithContext copies the request-scoped values of ctx onto the logger. When
// no trace id was stored explicitly the active span's id is used.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var args []any
	for _, key := range scopedKeys {
		if value, ok := ctx.Value(key).(string); ok && value != "" {
			args = append(args, string(key), value)
		}
	}
	if _, ok := ctx.Value(TraceIDKey).(string); !ok {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			args = append(args, string(TraceIDKey), sc.TraceID().String())
		}
	}
	return l.derive(args...)
}
