package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"librarian/internal/fileutil"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/services"
)

// remoteConn is the slice of an SSH+SFTP session the remote executor needs.
type remoteConn interface {
	MkdirAll(dir string) error
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, mode os.FileMode) error
	// Run executes command and returns its exit status. A non-nil error
	// means the command could not be run or its status was lost.
	Run(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)
	Close() error
}

type dialFunc func(ctx context.Context) (remoteConn, error)

// RemoteOptions configures a Remote executor.
type RemoteOptions struct {
	Host string
	// Command is the interpreter on the remote host.
	Command string
	// Program is the local organizer program mirrored to WorkDir.
	Program        string
	WorkDir        string
	ConnectTimeout time.Duration
	UploadTimeout  time.Duration
	ExecTimeout    time.Duration
}

const (
	digestCacheSize = 64
	digestCacheTTL  = 10 * time.Minute
	stampSuffix     = ".sha256"
)

// Remote runs the organizer on another host over SSH.
type Remote struct {
	opts    RemoteOptions
	dial    dialFunc
	digests *expirable.LRU[string, string]
	logger  *slog.Logger
}

// NewRemote constructs an SSH-backed executor.
func NewRemote(opts RemoteOptions, ssh SSHOptions, logger *slog.Logger) *Remote {
	return newRemote(opts, func(ctx context.Context) (remoteConn, error) {
		return dialSSH(ctx, ssh)
	}, logger)
}

func newRemote(opts RemoteOptions, dial dialFunc, logger *slog.Logger) *Remote {
	return &Remote{
		opts:    opts,
		dial:    dial,
		digests: expirable.NewLRU[string, string](digestCacheSize, nil, digestCacheTTL),
		logger:  logging.NewComponentLogger(logger, "organizer"),
	}
}

// Execute mirrors the organizer program, writes the job file and runs the
// organizer on the remote host.
func (r *Remote) Execute(ctx context.Context, inv Invocation) (Result, error) {
	program, err := os.ReadFile(r.opts.Program)
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "organizer", "read program", r.opts.Program, err)
	}

	dialCtx := ctx
	if r.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, r.opts.ConnectTimeout)
		defer cancel()
	}
	conn, err := r.dial(dialCtx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, unreachable("dial", r.opts.Host, err)
	}
	defer conn.Close()

	logger := r.logger.With(logging.String(logging.FieldHash, inv.Job.Hash), logging.String("host", r.opts.Host))

	remoteProgram := path.Join(r.opts.WorkDir, path.Base(r.opts.Program))
	jobFile := path.Join(r.opts.WorkDir, "jobs", inv.FileName())
	err = withDeadline(conn, r.opts.UploadTimeout, func() error {
		if err := conn.MkdirAll(path.Join(r.opts.WorkDir, "jobs")); err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
		if err := r.syncProgram(conn, remoteProgram, program, logger); err != nil {
			return err
		}
		if _, err := conn.Stat(jobFile); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat job file: %w", err)
		}
		if err := conn.WriteFile(jobFile, inv.Render(), 0o600); err != nil {
			return fmt.Errorf("write job file: %w", err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, unreachable("upload", r.opts.Host, err)
	}

	command := fmt.Sprintf("cd %s && %s %s --config %s",
		shellQuote(r.opts.WorkDir), r.opts.Command, shellQuote(remoteProgram), shellQuote(jobFile))

	runCtx := ctx
	if r.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.ExecTimeout)
		defer cancel()
	}

	logger.Info("organizer started",
		logging.String(logging.FieldEventType, "organizer_started"),
		logging.String("target", "remote"),
		logging.String("job_file", jobFile),
	)
	var stdout, stderr bytes.Buffer
	start := time.Now()
	code, runErr := conn.Run(runCtx, command, &stdout, &stderr)
	result := Result{Duration: time.Since(start), ExitCode: code}
	result.OrganizedPath, result.OutputTail = parseOutput(stdout.String(), stderr.String())
	if result.OutputTail != "" {
		logger.Debug("organizer output", logging.String("tail", result.OutputTail))
	}

	switch {
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return result, services.Wrap(services.ErrExternalTool, "organizer", "run",
			fmt.Sprintf("execution timed out after %s", r.opts.ExecTimeout), ErrOrganizerFailed)
	case runErr != nil:
		return result, unreachable("run", r.opts.Host, runErr)
	case code != 0:
		return result, services.Wrap(services.ErrExternalTool, "organizer", "run",
			fmt.Sprintf("exit code %d", code), ErrOrganizerFailed)
	}
	return result, nil
}

// syncProgram uploads the organizer unless the remote stamp already carries
// the local digest.
func (r *Remote) syncProgram(conn remoteConn, remoteProgram string, program []byte, logger *slog.Logger) error {
	digest := fileutil.Digest(program)
	key := r.opts.Host + ":" + remoteProgram

	if cached, ok := r.digests.Get(key); ok && cached == digest {
		metrics.RecordUpload("cached")
		return nil
	}
	stamp, err := conn.ReadFile(remoteProgram + stampSuffix)
	if err == nil && strings.TrimSpace(string(stamp)) == digest {
		if _, statErr := conn.Stat(remoteProgram); statErr == nil {
			r.digests.Add(key, digest)
			metrics.RecordUpload("skipped")
			return nil
		}
	}

	if err := conn.WriteFile(remoteProgram, program, 0o755); err != nil {
		metrics.RecordUpload("failed")
		return fmt.Errorf("upload program: %w", err)
	}
	if err := conn.WriteFile(remoteProgram+stampSuffix, []byte(digest+"\n"), 0o644); err != nil {
		metrics.RecordUpload("failed")
		return fmt.Errorf("write program stamp: %w", err)
	}
	r.digests.Add(key, digest)
	metrics.RecordUpload("uploaded")
	logger.Info("organizer program uploaded",
		logging.String(logging.FieldEventType, "organizer_uploaded"),
		logging.String("path", remoteProgram),
		logging.Int("bytes", len(program)),
	)
	return nil
}

// withDeadline runs fn and closes conn if it overruns timeout, which aborts
// any transfer in progress.
func withDeadline(conn remoteConn, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}
	var expired atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		expired.Store(true)
		_ = conn.Close()
	})
	err := fn()
	timer.Stop()
	if expired.Load() {
		return services.Wrap(services.ErrTimeout, "organizer", "upload",
			fmt.Sprintf("exceeded %s", timeout), err)
	}
	return err
}

func unreachable(operation, host string, err error) error {
	return services.Wrap(services.ErrTransient, "organizer", operation, host, fmt.Errorf("%w: %w", ErrRemoteUnreachable, err))
}
