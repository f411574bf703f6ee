package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteDownload creates a fake completed download: a directory named name
// under root holding a couple of audio files.
func WriteDownload(t testing.TB, root, name string) string {
	t.Helper()

	dir := filepath.Join(root, name)
	WriteFile(t, filepath.Join(dir, "01 - Chapter One.m4b"), 2048)
	WriteFile(t, filepath.Join(dir, "cover.jpg"), 128)
	return dir
}
