package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Kind groups failures by how they should be reported to people.
type Kind string

const (
	// KindNone is returned for nil errors.
	KindNone Kind = ""
	// KindBenign covers duplicate deliveries and other no-op outcomes.
	KindBenign Kind = "benign"
	// KindStalled covers failures a person can retry later (timeouts, unreachable hosts).
	KindStalled Kind = "stalled"
	// KindOperator covers failures that need operator intervention (ambiguity, bad config).
	KindOperator Kind = "operator"
	// KindFailed covers terminal failures.
	KindFailed Kind = "failed"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Mark tags a domain sentinel with a classification marker so callers can match
// either with errors.Is.
func Mark(marker, sentinel error) error {
	return fmt.Errorf("%w: %w", marker, sentinel)
}

// Classify maps an error to the Kind used when wording notifications and
// choosing API status codes.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return KindStalled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return KindOperator
	default:
		return KindFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
