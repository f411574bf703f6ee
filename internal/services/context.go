package services

import "context"

type contextKey string

const (
	requestIDKey     contextKey = "request_id"
	hashKey          contextKey = "hash"
	stageKey         contextKey = "stage"
	correlationIDKey contextKey = "correlation_id"
)

// WithRequestID annotates context with the acquisition request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithHash annotates context with a torrent info-hash.
func WithHash(ctx context.Context, hash string) context.Context {
	if hash == "" {
		return ctx
	}
	return context.WithValue(ctx, hashKey, hash)
}

// HashFromContext returns the torrent hash if present.
func HashFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(hashKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the lifecycle stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithCorrelationID annotates context with an inbound call identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
