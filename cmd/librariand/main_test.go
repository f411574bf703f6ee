package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCommandRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := newCommand()
	cmd.SetArgs([]string{"--config", path})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging.level validation error, got %v", err)
	}
}

func TestCommandRejectsArgs(t *testing.T) {
	cmd := newCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}
