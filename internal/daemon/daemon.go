package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"librarian/internal/api"
	"librarian/internal/approval"
	"librarian/internal/config"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/monitor"
	"librarian/internal/notifications"
	"librarian/internal/pathmap"
	"librarian/internal/services"
)

// Dependencies are the collaborators a Daemon drives.
type Dependencies struct {
	Store       *ledger.Store
	Coordinator *approval.Coordinator
	Monitor     *monitor.Monitor
	Translator  *pathmap.Translator
	Notifier    notifications.Service
	Logger      *slog.Logger
	LogPath     string
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *ledger.Store
	coordinator *approval.Coordinator
	monitor     *monitor.Monitor
	translator  *pathmap.Translator
	notifier    notifications.Service
	logPath     string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	LogPath      string
	Requests     map[ledger.State]int
	Monitor      monitor.Status
	Target       string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Coordinator == nil || deps.Monitor == nil {
		return nil, errors.New("daemon requires config, ledger store, coordinator, and monitor")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	translator := deps.Translator
	if translator == nil {
		var err error
		if translator, err = cfg.PathMap(); err != nil {
			return nil, fmt.Errorf("path mappings: %w", err)
		}
	}

	logger := logging.NewComponentLogger(deps.Logger, "daemon")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       deps.Store,
		coordinator: deps.Coordinator,
		monitor:     deps.Monitor,
		translator:  translator,
		notifier:    notifier,
		logPath:     deps.LogPath,
		lockPath:    cfg.LockPath(),
		lock:        flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, deps.Logger)
	d.monitor.AddSweeper("approval-expiry", d.coordinator.Sweep)
	return d, nil
}

// Start acquires the daemon lock, settles records left by a previous run,
// and starts the monitor loop and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another librarian daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := d.monitor.Recover(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "job recovery failed", "job_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger database access"),
			logging.String(logging.FieldImpact, "jobs left running by the previous run stay running"),
		)
	}

	d.coordinator.Start(runCtx)
	if _, err := d.coordinator.Resume(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "request recovery incomplete", "approval_resume_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect stuck requests with 'librarian requests list'"),
			logging.String(logging.FieldImpact, "some in-flight requests were not resumed"),
		)
	}

	if err := d.monitor.Start(runCtx); err != nil {
		d.coordinator.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start monitor: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.monitor.Stop()
		d.coordinator.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("librarian daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("organizer_target", d.cfg.Organizer.Target),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.monitor.Stop()
	d.coordinator.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start reports another instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("librarian daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the current daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the HTTP API listen address once started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Monitor:      d.monitor.Status(),
		Target:       d.cfg.Organizer.Target,
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Debug("request stats unavailable", logging.Error(err))
	}
	status.Requests = stats
	return status
}

// CreateRequest records a validated new request and starts its approval.
func (d *Daemon) CreateRequest(ctx context.Context, payload api.CreateRequestPayload) (*ledger.Request, error) {
	req, err := payload.ToRequest()
	if err != nil {
		return nil, err
	}
	return d.coordinator.OnCreated(ctx, req)
}

// Decide applies an approver decision delivered through the chat callback
// or the CLI.
func (d *Daemon) Decide(ctx context.Context, payload api.ApprovalPayload) (approval.Decision, error) {
	outcome, err := payload.Decision()
	if err != nil {
		return approval.Decision{}, err
	}
	return d.coordinator.OnApprovalEvent(ctx, strings.TrimSpace(payload.MessageHandle), outcome, strings.TrimSpace(payload.DeciderID))
}

// ListRequests returns requests filtered by optional states.
func (d *Daemon) ListRequests(ctx context.Context, states []ledger.State) ([]*ledger.Request, error) {
	return d.store.ListRequests(ctx, states...)
}

// DescribeRequest returns a request with its attached records.
func (d *Daemon) DescribeRequest(ctx context.Context, id string) (*ledger.Detail, error) {
	detail, err := d.store.Describe(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "describe", "request "+id, ledger.ErrRequestNotFound)
	}
	return detail, nil
}

// BindHash resolves a failed submission to an operator-supplied hash.
func (d *Daemon) BindHash(ctx context.Context, id, hash string) (*ledger.Request, error) {
	return d.coordinator.ManualBind(ctx, strings.TrimSpace(id), hash)
}

// ListJobs returns organizer jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []ledger.JobStatus) ([]*ledger.OrganizerJob, error) {
	return d.store.ListJobs(ctx, statuses...)
}

// ClearJob removes a failed job so the next monitor tick creates a fresh one.
func (d *Daemon) ClearJob(ctx context.Context, hash string) error {
	hash = ledger.NormalizeHash(hash)
	if err := d.store.ClearJob(ctx, hash); err != nil {
		return err
	}
	logging.WithContext(services.WithHash(ctx, hash), d.logger).Info("organizer job cleared",
		logging.String(logging.FieldEventType, "job_cleared"),
	)
	return nil
}

// Translate rewrites a path with the configured mapping table.
func (d *Daemon) Translate(p string, dir pathmap.Direction) (string, error) {
	return d.translator.Translate(p, dir)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
