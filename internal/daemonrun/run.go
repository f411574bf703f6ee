// Package daemonrun wires the daemon's collaborators from configuration and
// runs the process until it receives SIGINT or SIGTERM.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"librarian/internal/approval"
	"librarian/internal/chat"
	"librarian/internal/config"
	"librarian/internal/daemon"
	"librarian/internal/deps"
	"librarian/internal/executor"
	"librarian/internal/ipc"
	"librarian/internal/ledger"
	"librarian/internal/library"
	"librarian/internal/logging"
	"librarian/internal/monitor"
	"librarian/internal/notifications"
	"librarian/internal/preflight"
	"librarian/internal/resolver"
	"librarian/internal/torrent"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight disables the startup readiness checks.
	SkipPreflight bool
}

// CurrentLogName is the stable pointer to the active run's log file.
const CurrentLogName = "librarian.log"

// Run starts the librarian daemon and blocks until the process is signaled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("librarian-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", CurrentLogName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "librarian-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Organizer.WorkDir, "jobs"), Pattern: "*.env"},
	)
	logDependencySnapshot(logger, cfg)
	if !opts.SkipPreflight {
		logPreflight(signalCtx, logger, cfg)
	}

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	store, err := ledger.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open ledger", "ledger_open_failed",
			logging.Error(err),
			logging.String("database", cfg.DatabasePath()),
		)
		return err
	}

	d, err := build(cfg, store, logger, logPath)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and ledger access, then run librarian start"),
			logging.String(logging.FieldImpact, "requests are recorded but not processed"),
		)
	}

	<-signalCtx.Done()
	logger.Info("librarian daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// build assembles the coordinator, monitor, and daemon from configuration.
func build(cfg *config.Config, store *ledger.Store, logger *slog.Logger, logPath string) (*daemon.Daemon, error) {
	translator, err := cfg.PathMap()
	if err != nil {
		return nil, fmt.Errorf("path mappings: %w", err)
	}
	runner, err := executor.NewRunner(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("organizer runner: %w", err)
	}

	torrents := torrent.NewQBittorrent(cfg.Torrent, logger)
	messenger := chat.New(cfg, logger)
	notifier := notifications.NewService(cfg)

	coordinator := approval.New(cfg, approval.Dependencies{
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
		Runner:    runner,
		Messenger: messenger,
		Notifier:  notifier,
		Scanner:   library.NewConfiguredScanner(cfg),
		Logger:    logger,
	})

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:       store,
		Coordinator: coordinator,
		Monitor:     mon,
		Translator:  translator,
		Notifier:    notifier,
		Logger:      logger,
		LogPath:     logPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, CurrentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("organizer_target", cfg.Organizer.Target),
		logging.Bool("remote_enabled", cfg.RemoteEnabled()),
		logging.Bool("library_scan_enabled", cfg.Library.Enabled),
		logging.Bool("chat_webhook_configured", strings.TrimSpace(cfg.Chat.WebhookURL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Int("path_mappings", len(cfg.PathMappings)),
	}
	for _, status := range deps.Check(deps.OrganizerRequirements(cfg)) {
		key := strings.ReplaceAll(strings.ToLower(status.Name), " ", "_")
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "requests that need this collaborator will stall or fail"),
		)
	}
}
