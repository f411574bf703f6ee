package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"librarian/internal/logs"
)

func writeLog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "librarian.log")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}
}

func TestTailMatchFiltersLines(t *testing.T) {
	path := writeLog(t, "request_id=r1 created\nrequest_id=r2 created\nrequest_id=r1 approved\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Match: "r1"})
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[1] != "request_id=r1 approved" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "done\npartial")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0})
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(result.Lines) != 1 || result.Offset != 5 {
		t.Fatalf("expected one complete line and offset 5, got %#v offset=%d", result.Lines, result.Offset)
	}
}

func TestTailFollowWaitsForNewLines(t *testing.T) {
	path := writeLog(t, "start\n")
	ctx := context.Background()

	initial, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial Tail failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString("next\n")
	}()

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: initial.Offset, Follow: true, Wait: 2 * time.Second})
	if err != nil {
		t.Fatalf("follow Tail failed: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "next" {
		t.Fatalf("expected appended line, got %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
