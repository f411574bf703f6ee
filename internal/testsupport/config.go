package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"librarian/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timings are shortened so lifecycle tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Organizer.Target = config.TargetLocal
	cfgVal.Organizer.Command = "/bin/sh"
	cfgVal.Organizer.Program = filepath.Join(base, "organizer", "library_organizer.sh")
	cfgVal.Organizer.WorkDir = filepath.Join(base, "organizer")
	cfgVal.Organizer.DownloadPath = filepath.Join(base, "downloads")
	cfgVal.Organizer.LibraryPath = filepath.Join(base, "library")
	cfgVal.Resolution.Timeout = 2
	cfgVal.Resolution.PollInterval = 1
	cfgVal.Monitor.PollInterval = 1
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithApprovalTimeout overrides the approval expiry window in seconds.
func WithApprovalTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Approval.Timeout = seconds
	}
}

// WithAutoApprove enables auto-approval above the given seeder count.
func WithAutoApprove(minSeeders int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Approval.AutoApproveMinSeeders = minSeeders
	}
}

// WithOrganizerScript writes body as the organizer program run by /bin/sh.
// The organizer invokes it as `sh <script> --config <file>`.
func WithOrganizerScript(body string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.MkdirAll(filepath.Dir(b.cfg.Organizer.Program), 0o755); err != nil {
			b.t.Fatalf("mkdir organizer dir: %v", err)
		}
		script := []byte("#!/bin/sh\n" + body + "\n")
		if err := os.WriteFile(b.cfg.Organizer.Program, script, 0o755); err != nil {
			b.t.Fatalf("write organizer script: %v", err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
