package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names the files under Dir matching Pattern that age out.
// Paths listed in Exclude are never removed.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes regular files older than retentionDays across
// targets and returns how many were removed. Zero days keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		for _, path := range target.expired(cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "retention remove failed; file remains", "retention_remove_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of the log and organizer work directories"),
					String(FieldImpact, "expired file stays on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("expired file pruned", String("path", path), String(FieldEventType, "retention_pruned"))
			}
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("retention sweep finished",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "retention_sweep"),
		)
	}
	return removed
}

// expired lists the target's regular files last modified before cutoff.
// Symlinks are skipped so the current-log pointer survives.
func (t RetentionTarget) expired(cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}

	skip := make(map[string]struct{}, len(t.Exclude))
	for _, path := range t.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil && strings.TrimSpace(path) != "" {
			skip[abs] = struct{}{}
		}
	}

	out := make([]string, 0, len(matches))
	for _, match := range matches {
		abs, err := filepath.Abs(match)
		if err != nil {
			continue
		}
		if _, excluded := skip[abs]; excluded {
			continue
		}
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			out = append(out, abs)
		}
	}
	return out
}
