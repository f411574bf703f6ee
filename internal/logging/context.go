package logging

import (
	"context"
	"log/slog"

	"librarian/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRequestID is the structured logging key for acquisition request identifiers.
	FieldRequestID = "request_id"
	// FieldHash is the structured logging key for torrent info-hashes.
	FieldHash = "hash"
	// FieldStage is the structured logging key for lifecycle stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the structured logging key for inbound call identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. approval_decided).
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRequestID, id))
	}
	if hash, ok := services.HashFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldHash, hash))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if cid, ok := services.CorrelationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, cid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
