package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"librarian/internal/approval"
	"librarian/internal/config"
	"librarian/internal/daemon"
	"librarian/internal/executor"
	"librarian/internal/ipc"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/monitor"
	"librarian/internal/pathmap"
	"librarian/internal/resolver"
	"librarian/internal/testsupport"
	"librarian/internal/torrent"
)

type noopRunner struct{}

func (noopRunner) Run(context.Context, executor.Job) (executor.Result, error) {
	return executor.Result{}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *ledger.Store
	daemon     *daemon.Daemon
	messenger  *testsupport.FakeMessenger
	socketPath string
	configPath string
	logPath    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg, configPath := newCLIConfig(t)
	cfg.PathMappings = []config.PathMapping{{Torrent: "/seed/downloads", Organizer: "/mnt/seed"}}
	writeTestConfig(t, configPath, cfg)

	logPath := filepath.Join(cfg.Paths.LogDir, "librarian.log")
	if err := os.WriteFile(logPath, []byte("daemon ready\nhash=feedbeef organizer finished\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	store := testsupport.MustOpenLedger(t, cfg)
	torrents := testsupport.NewFakeTorrents()
	torrents.OnSubmit = func(desc torrent.Descriptor) torrent.Torrent {
		return torrent.Torrent{Hash: "feedbeef", Name: desc.URL, Category: desc.Category}
	}
	messenger := testsupport.NewFakeMessenger()
	notifier := &testsupport.FakeNotifier{}
	logger := logging.NewNop()

	coord := approval.New(cfg, approval.Dependencies{
		Store:     store,
		Resolver:  resolver.New(torrents, store, resolver.OptionsFromConfig(cfg.Resolution), logger),
		Torrents:  torrents,
		Messenger: messenger,
		Notifier:  notifier,
		Logger:    logger,
	})
	mon := monitor.New(cfg, monitor.Dependencies{
		Store:     store,
		Torrents:  torrents,
		Runner:    noopRunner{},
		Messenger: messenger,
		Notifier:  notifier,
		Scanner:   &testsupport.FakeScanner{},
		Logger:    logger,
	})
	translator, err := pathmap.New([]pathmap.Mapping{{Torrent: "/seed/downloads", Organizer: "/mnt/seed"}})
	if err != nil {
		t.Fatalf("pathmap.New: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:       store,
		Coordinator: coord,
		Monitor:     mon,
		Translator:  translator,
		Notifier:    notifier,
		Logger:      logger,
		LogPath:     logPath,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		messenger:  messenger,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		logPath:    logPath,
	}
}

// newCLIConfig returns a test config with HOME pointed inside its temp tree.
func newCLIConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg, filepath.Join(homeDir, ".config", "librarian", "config.toml")
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\n\n", cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.APIBind)
	fmt.Fprintf(&b, "[organizer]\ntarget = %q\ncommand = %q\nprogram = %q\nwork_dir = %q\n\n",
		cfg.Organizer.Target, cfg.Organizer.Command, cfg.Organizer.Program, cfg.Organizer.WorkDir)
	for _, m := range cfg.PathMappings {
		fmt.Fprintf(&b, "[[path_mappings]]\ntorrent = %q\norganizer = %q\n\n", m.Torrent, m.Organizer)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
