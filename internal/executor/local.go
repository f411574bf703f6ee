package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"librarian/internal/fileutil"
	"librarian/internal/logging"
	"librarian/internal/services"
)

// LocalOptions configures a Local executor.
type LocalOptions struct {
	Command     string
	Program     string
	WorkDir     string
	ExecTimeout time.Duration
}

// Local runs the organizer as a subprocess on this host.
type Local struct {
	opts   LocalOptions
	logger *slog.Logger
}

// NewLocal constructs a local executor.
func NewLocal(opts LocalOptions, logger *slog.Logger) *Local {
	return &Local{opts: opts, logger: logging.NewComponentLogger(logger, "organizer")}
}

// Execute writes the job file and runs the organizer against it.
func (l *Local) Execute(ctx context.Context, inv Invocation) (Result, error) {
	jobsDir := filepath.Join(l.opts.WorkDir, "jobs")
	if err := os.MkdirAll(jobsDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "organizer", "prepare work dir", jobsDir, err)
	}
	jobFile := filepath.Join(jobsDir, inv.FileName())
	if _, err := os.Stat(jobFile); errors.Is(err, os.ErrNotExist) {
		if err := fileutil.WriteAtomic(jobFile, inv.Render(), 0o600); err != nil {
			return Result{}, services.Wrap(services.ErrConfiguration, "organizer", "write job file", jobFile, err)
		}
	}

	runCtx := ctx
	if l.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.opts.ExecTimeout)
		defer cancel()
	}

	args := []string{"--config", jobFile}
	if l.opts.Program != "" {
		args = append([]string{l.opts.Program}, args...)
	}
	cmd := exec.CommandContext(runCtx, l.opts.Command, args...) //nolint:gosec
	cmd.Dir = l.opts.WorkDir
	cmd.WaitDelay = 5 * time.Second

	logger := l.logger.With(logging.String(logging.FieldHash, inv.Job.Hash))
	logger.Info("organizer started",
		logging.String(logging.FieldEventType, "organizer_started"),
		logging.String("target", "local"),
		logging.String("job_file", jobFile),
	)

	start := time.Now()
	stdout, stderr, runErr := runStreaming(cmd, func(line string) {
		logger.Debug("organizer output", logging.String("line", line))
	})
	result := Result{Duration: time.Since(start), ExitCode: -1}
	result.OrganizedPath, result.OutputTail = parseOutput(stdout, stderr)
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case runErr == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return result, services.Wrap(services.ErrExternalTool, "organizer", "run",
			fmt.Sprintf("execution timed out after %s", l.opts.ExecTimeout), ErrOrganizerFailed)
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return result, services.Wrap(services.ErrExternalTool, "organizer", "run",
				fmt.Sprintf("exit code %d", exitErr.ExitCode()), ErrOrganizerFailed)
		}
		return result, services.Wrap(services.ErrExternalTool, "organizer", "start",
			fmt.Sprintf("%s %s", l.opts.Command, l.opts.Program), fmt.Errorf("%w: %w", ErrOrganizerFailed, runErr))
	}
}

// runStreaming runs cmd, forwarding each output line while capturing both streams.
func runStreaming(cmd *exec.Cmd, forward func(string)) (string, string, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start command: %w", err)
	}

	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		stdout, stderr strings.Builder
	)
	scan := func(r io.Reader, dst *strings.Builder) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			dst.WriteString(line)
			dst.WriteByte('\n')
			mu.Unlock()
			if forward != nil {
				forward(line)
			}
		}
	}
	wg.Add(2)
	go scan(stdoutPipe, &stdout)
	go scan(stderrPipe, &stderr)
	wg.Wait()

	err = cmd.Wait()
	return stdout.String(), stderr.String(), err
}
