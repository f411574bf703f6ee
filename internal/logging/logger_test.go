package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"librarian/internal/config"
	"librarian/internal/logging"
	"librarian/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "librarian.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "monitor").Info("message without caller", logging.String("hash", "abc"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
	if !strings.Contains(line, "INFO monitor: message without caller hash=abc") {
		t.Fatalf("unexpected console layout: %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "json message" || entry["k"] != "v" {
		t.Fatalf("unexpected json entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRequestID(context.Background(), "req-xyz")
	ctx = services.WithHash(ctx, "h1")
	ctx = services.WithStage(ctx, "organizing")
	logging.WithContext(ctx, logger).Info("contextual log")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	for key, want := range map[string]string{
		logging.FieldRequestID: "req-xyz",
		logging.FieldHash:      "h1",
		logging.FieldStage:     "organizing",
	} {
		if entry[key] != want {
			t.Fatalf("field %s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "something odd", "odd_event")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected %s in %v", key, entry)
		}
	}
}
