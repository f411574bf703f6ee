package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"librarian/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "organizer", "exec", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"organizer", "exec", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	sentinel := errors.New("remote unreachable")
	marked := services.Mark(services.ErrTransient, sentinel)
	wrapped := fmt.Errorf("job abc: %w", marked)

	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, services.KindNone},
		{"timeout", services.Wrap(services.ErrTimeout, "resolve", "poll", "", nil), services.KindStalled},
		{"transient", wrapped, services.KindStalled},
		{"validation", services.Wrap(services.ErrValidation, "", "", "bad", nil), services.KindOperator},
		{"configuration", services.Wrap(services.ErrConfiguration, "", "", "bad", nil), services.KindOperator},
		{"external", services.Wrap(services.ErrExternalTool, "", "", "exit 1", nil), services.KindFailed},
		{"plain", errors.New("whatever"), services.KindFailed},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
	if !errors.Is(wrapped, sentinel) {
		t.Fatalf("expected sentinel to remain matchable through Mark")
	}
}
