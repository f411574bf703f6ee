package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error renders err under the "error" key; a nil error is logged as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes to the variadic form accepted by slog.Logger methods.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(nopHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

const (
	defaultHint   = "check the daemon log for the preceding entries"
	defaultImpact = "the request continues but may need attention"
)

// WarnWithContext logs a warning that always carries event_type, error_hint,
// and impact. Caller supplied values win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs, eventType, FieldErrorHint, defaultHint, FieldImpact, defaultImpact)
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs, eventType, FieldErrorHint, defaultHint)
	logger.Error(msg, Args(attrs...)...)
}

// withDefaults appends event_type and each key/value pair in defaults whose
// key is not already present in attrs.
func withDefaults(attrs []Attr, eventType string, defaults ...string) []Attr {
	present := make(map[string]bool, len(attrs))
	for _, attr := range attrs {
		present[attr.Key] = true
	}
	if !present[FieldEventType] {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	for i := 0; i+1 < len(defaults); i += 2 {
		if !present[defaults[i]] {
			attrs = append(attrs, String(defaults[i], defaults[i+1]))
		}
	}
	return attrs
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
