package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"librarian/internal/daemonctl"
	"librarian/internal/ledger"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the librarian daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the librarian daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the librarian daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	var runChecks bool
	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, monitor, and request status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue(), runChecks)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if statusJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			renderStatus(stdout, snap, shouldColorize(stdout))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&runChecks, "checks", false, "Run readiness checks against configured collaborators")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(out io.Writer, snap daemonctl.Snapshot, colorize bool) {
	status := snap.Status
	p := newStatusPrinter(out, colorize)

	p.section("System Status")
	switch {
	case !snap.Reachable:
		p.line("Daemon", statusError, "Not running")
	case status.Running:
		p.line("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID))
	default:
		p.line("Daemon", statusWarn, fmt.Sprintf("Idle (pid %d); run librarian start", status.PID))
	}
	if snap.Reachable {
		monitorKind, monitorText := statusOK, "Polling"
		if !status.Monitor.Running {
			monitorKind, monitorText = statusWarn, "Stopped"
		}
		if status.Monitor.LastError != "" {
			monitorKind, monitorText = statusWarn, "Last tick failed: "+status.Monitor.LastError
		}
		p.line("Monitor", monitorKind, monitorText)
		if status.Monitor.LastTick != "" {
			p.line("Last tick", statusInfo, status.Monitor.LastTick)
		}
		if len(status.Monitor.InFlight) > 0 {
			p.line("In flight", statusInfo, strings.Join(status.Monitor.InFlight, ", "))
		}
	}
	p.line("Organizer target", statusInfo, status.Target)
	p.line("Database", statusInfo, status.DatabasePath)
	if status.LogPath != "" {
		p.line("Log file", statusInfo, status.LogPath)
	}

	if len(snap.Checks) > 0 {
		p.section("Readiness Checks")
		p.checks(snap.Checks)
	}

	p.section("Requests")
	rows := buildRequestCountRows(status.RequestCounts)
	if len(rows) == 0 {
		p.text("No requests recorded")
		return
	}
	p.text(renderTable(numeric(columns("State", "Count"), "Count"), rows))
}

// buildRequestCountRows lists non-zero counts in lifecycle order.
func buildRequestCountRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, state := range ledger.AllStates() {
		count := counts[string(state)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(state), strconv.Itoa(count)})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
	if ctx.logLevelFlag != nil {
		opts.LogLevel = strings.TrimSpace(*ctx.logLevelFlag)
	}
	return opts
}
