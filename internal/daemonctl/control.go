// Package daemonctl launches, stops, and inspects the librarian daemon from
// the CLI side of the control socket.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"librarian/internal/api"
	"librarian/internal/config"
	"librarian/internal/ipc"
	"librarian/internal/ledger"
	"librarian/internal/preflight"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch starts a detached `librarian daemon` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls until the control socket accepts a connection.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	lastErr := errors.New("timeout waiting for daemon")
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon process when the socket is absent and
// then asks it to start its background services.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if err := Launch(executablePath, opts); err != nil {
			return StartResult{}, err
		}
		if client, err = WaitForClient(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	if status, err := client.Status(); err == nil && status.Status.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
	case strings.Contains(message, "already running") && !launched:
		return StartResult{State: StartStateAlreadyRunning, Message: message}, nil
	case message == "":
		message = "start request sent"
	}
	return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
}

// WaitForShutdown waits for the socket to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	lastErr := errors.New("timeout waiting for shutdown")
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(pollInterval)
			continue
		}
		status, err := client.Status()
		_ = client.Close()
		if err == nil && !status.Status.Running {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New("daemon still running")
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether the control socket is reachable and the daemon
// PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.Status.PID, nil
}

// ForceKillProcess sends SIGKILL to the daemon and removes its pid and lock
// files. The pid file takes precedence over fallbackPID.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	switch {
	case err == nil:
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopAndTerminate asks the daemon to stop, waits up to gracePeriod for the
// process to exit, and then kills it.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, err := client.Status(); err == nil {
		pid = status.Status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{StopAcknowledged: resp.Stopped, PID: pid}

	// Stop halts the services; the process itself exits on SIGTERM.
	if pid > 0 && pid != os.Getpid() {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	if err := waitForSocketGone(socketPath, gracePeriod); err == nil {
		return result, nil
	}

	killed, err := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}
	startResult, err := EnsureStarted(cfg.SocketPath(), executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{WasRunning: stopErr == nil, Stop: stopResult, Start: startResult}, nil
}

// Snapshot is the status view rendered by `librarian status`.
type Snapshot struct {
	Reachable bool
	Status    api.DaemonStatus
	Checks    []preflight.Result
}

// BuildStatusSnapshot collects daemon status over IPC and falls back to the
// ledger for request counts when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config, runChecks bool) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	var snap Snapshot
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Reachable = true
			snap.Status = resp.Status
		}
		_ = client.Close()
	}

	if !snap.Reachable {
		snap.Status = api.DaemonStatus{
			DatabasePath:  cfg.DatabasePath(),
			LockFilePath:  cfg.LockPath(),
			RequestCounts: api.RequestCounts(nil),
			Target:        cfg.Organizer.Target,
		}
		if _, err := os.Stat(cfg.DatabasePath()); err == nil {
			if store, openErr := ledger.OpenPath(cfg.DatabasePath()); openErr == nil {
				queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				stats, statsErr := store.Stats(queryCtx)
				cancel()
				_ = store.Close()
				if statsErr == nil {
					snap.Status.RequestCounts = api.RequestCounts(stats)
				}
			}
		}
	}

	if runChecks {
		snap.Checks = preflight.RunAll(ctx, cfg)
	}
	return snap, nil
}

func waitForSocketGone(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("socket %s still present after %s", socketPath, timeout)
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
