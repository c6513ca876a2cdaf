package logging

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// BusinessEvent is an audited state change of a domain record.
type BusinessEvent struct {
	EventType  string
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
	RelatedIDs map[string]string
	Data       map[string]any
}

func (l *Logger) LogBusinessEvent(ctx context.Context, event BusinessEvent) {
	args := []any{
		slog.String("eventType", event.EventType),
		slog.String("entityType", event.EntityType),
		slog.String("entityId", event.EntityID),
		slog.String("action", event.Action),
	}
	if event.ActorID != "" {
		args = append(args, slog.String("actorId", event.ActorID))
	}
	for key, id := range event.RelatedIDs {
		args = append(args, slog.String(key, id))
	}
	if len(event.Data) > 0 {
		data := make([]any, 0, len(event.Data))
		for key, value := range event.Data {
			data = append(data, slog.Any(key, value))
		}
		args = append(args, slog.Group("data", data...))
	}
	l.WithContext(ctx).Info("Business event", args...)
}

// AccessEntry is one served HTTP request.
type AccessEntry struct {
	Method    string
	Path      string
	Route     string
	Status    int
	Duration  time.Duration
	ClientIP  string
	UserAgent string
}

// HTTPRequest logs at warn for 4xx and error for 5xx.
func (l *Logger) HTTPRequest(ctx context.Context, entry AccessEntry) {
	level := slog.LevelInfo
	switch {
	case entry.Status >= 500:
		level = slog.LevelError
	case entry.Status >= 400:
		level = slog.LevelWarn
	}
	l.WithContext(ctx).Log(ctx, level, "HTTP request",
		slog.String("method", entry.Method),
		slog.String("path", entry.Path),
		slog.String("route", entry.Route),
		slog.Int("status", entry.Status),
		slog.Int64("durationMs", entry.Duration.Milliseconds()),
		slog.String("clientIP", entry.ClientIP),
		slog.String("userAgent", entry.UserAgent),
	)
}

// outcomeLevel keeps successful storage and broker calls at debug.
func outcomeLevel(ok bool) slog.Level {
	if ok {
		return slog.LevelDebug
	}
	return slog.LevelError
}

func (l *Logger) DatabaseQuery(ctx context.Context, collection, operation string, duration time.Duration, success bool, rowsAffected int64) {
	l.WithContext(ctx).Log(ctx, outcomeLevel(success), "Database query",
		slog.String("collection", collection),
		slog.String("operation", operation),
		slog.Int64("durationMs", duration.Milliseconds()),
		slog.Bool("success", success),
		slog.Int64("rowsAffected", rowsAffected),
	)
}

func (l *Logger) KafkaPublish(ctx context.Context, topic, eventType string, success bool, duration time.Duration) {
	l.WithContext(ctx).Log(ctx, outcomeLevel(success), "Kafka publish",
		slog.String("topic", topic),
		slog.String("eventType", eventType),
		slog.Bool("success", success),
		slog.Int64("durationMs", duration.Milliseconds()),
	)
}

func (l *Logger) KafkaConsume(ctx context.Context, topic, eventType string, partition int, offset int64) {
	l.WithContext(ctx).DebugContext(ctx, "Kafka consume",
		slog.String("topic", topic),
		slog.String("eventType", eventType),
		slog.Int("partition", partition),
		slog.Int64("offset", offset),
	)
}

func (l *Logger) WorkflowStart(ctx context.Context, workflowType, workflowID string) {
	l.WithContext(ctx).InfoContext(ctx, "Workflow started",
		slog.String("workflowType", workflowType),
		slog.String("workflowId", workflowID),
	)
}

// Panic logs a recovered panic value with the current goroutine's stack.
func (l *Logger) Panic(ctx context.Context, recovered any) {
	l.WithContext(ctx).ErrorContext(ctx, "Panic recovered",
		slog.Any("panic", recovered),
		slog.String("stack", string(debug.Stack())),
	)
}
