package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"librarian/internal/preflight"
)

func TestStatusLineWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	newStatusPrinter(&buf, false).line("Daemon", statusError, "Not running")
	want := "  Daemon:              [ERROR] Not running\n"
	if buf.String() != want {
		t.Fatalf("status line mismatch\n got: %q\nwant: %q", buf.String(), want)
	}
}

func TestStatusLineWithColor(t *testing.T) {
	got := newStatusPrinter(io.Discard, true).format("Daemon", statusOK, "Running")
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestSectionsAreSeparated(t *testing.T) {
	var buf bytes.Buffer
	p := newStatusPrinter(&buf, false)
	p.section("One")
	p.section("Two")
	want := "== One ==\n---------\n\n== Two ==\n---------\n"
	if buf.String() != want {
		t.Fatalf("sections mismatch\n got: %q\nwant: %q", buf.String(), want)
	}
}

func TestStatusChecks(t *testing.T) {
	var buf bytes.Buffer
	newStatusPrinter(&buf, false).checks([]preflight.Result{
		{Name: "qBittorrent", Passed: true, Detail: "Reachable (v4.6.3)"},
		{Name: "Organizer program", Passed: false, Detail: "not found"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	if !strings.Contains(lines[0], "[OK] Reachable (v4.6.3)") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not found") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN] Organizer program") {
		t.Fatalf("expected failed summary, got %q", lines[2])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
