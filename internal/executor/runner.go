package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"librarian/internal/config"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/pathmap"
	"librarian/internal/services"
)

// Executor runs one invocation on one target.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// Runner dispatches organizer jobs to the configured targets.
type Runner struct {
	translator   *pathmap.Translator
	targets      map[string]Executor
	downloadPath string
	libraryPath  string
	remoteDir    string
	logger       *slog.Logger
}

// NewRunner builds the local executor and, when a remote host is configured,
// the remote executor.
func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	translator, err := cfg.PathMap()
	if err != nil {
		return nil, err
	}
	targets := map[string]Executor{
		config.TargetLocal: NewLocal(LocalOptions{
			Command:     cfg.Organizer.Command,
			Program:     cfg.Organizer.Program,
			WorkDir:     cfg.Organizer.WorkDir,
			ExecTimeout: config.Seconds(cfg.Organizer.ExecTimeout),
		}, logger),
	}
	if cfg.RemoteEnabled() {
		targets[config.TargetRemote] = NewRemote(RemoteOptions{
			Host:           cfg.Remote.Host,
			Command:        cfg.Organizer.Command,
			Program:        cfg.Organizer.Program,
			WorkDir:        cfg.Remote.WorkDir,
			ConnectTimeout: config.Seconds(cfg.Remote.ConnectTimeout),
			UploadTimeout:  config.Seconds(cfg.Organizer.UploadTimeout),
			ExecTimeout:    config.Seconds(cfg.Organizer.ExecTimeout),
		}, SSHOptionsFromConfig(cfg.Remote), logger)
	}
	remoteDir := cfg.Organizer.WorkDir
	if cfg.RemoteEnabled() {
		remoteDir = cfg.Remote.WorkDir
	}
	return NewRunnerWith(translator, targets, cfg.Organizer.DownloadPath, cfg.Organizer.LibraryPath, remoteDir, logger), nil
}

// NewRunnerWith assembles a Runner from explicit executors.
func NewRunnerWith(translator *pathmap.Translator, targets map[string]Executor, downloadPath, libraryPath, remoteDir string, logger *slog.Logger) *Runner {
	return &Runner{
		translator:   translator,
		targets:      targets,
		downloadPath: downloadPath,
		libraryPath:  libraryPath,
		remoteDir:    remoteDir,
		logger:       logging.NewComponentLogger(logger, "executor"),
	}
}

// Prepare translates the job's content path and builds its configuration.
func (r *Runner) Prepare(job Job) (Invocation, error) {
	content := job.SourcePath
	if r.translator.Enabled() && content != "" {
		translated, err := r.translator.Translate(content, pathmap.ToOrganizer)
		if err != nil {
			return Invocation{}, err
		}
		content = translated
	}
	return Invocation{
		Job:         job,
		ContentPath: content,
		Env: []EnvVar{
			{Key: "QBIT_DOWNLOAD_PATH", Value: r.downloadPath},
			{Key: "LIBRARY_PATH", Value: r.libraryPath},
			{Key: "ORGANIZER_REMOTE_PATH", Value: r.remoteDir},
			{Key: "TORRENT_HASH", Value: job.Hash},
			{Key: "TORRENT_NAME", Value: job.Name},
			{Key: "CONTENT_PATH", Value: content},
			{Key: "REQUEST_ID", Value: job.RequestID},
			{Key: "BOOK_TITLE", Value: job.Title},
		},
	}, nil
}

// Run executes job on its target.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	target := job.Target
	if target == "" {
		target = config.TargetLocal
	}
	executor, ok := r.targets[target]
	if !ok {
		return Result{}, services.Wrap(services.ErrConfiguration, "organizer", "select target",
			fmt.Sprintf("target %q is not configured", target), nil)
	}
	inv, err := r.Prepare(job)
	if err != nil {
		return Result{}, err
	}

	done := metrics.JobStarted()
	defer done()
	start := time.Now()
	result, err := executor.Execute(ctx, inv)
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	metrics.RecordJob(target, status, time.Since(start))

	logger := logging.WithContext(ctx, r.logger).With(
		logging.String(logging.FieldHash, job.Hash),
		logging.String("target", target),
	)
	if err != nil {
		logging.WarnWithContext(logger, "organizer run failed", "organizer_failed",
			logging.Error(err),
			logging.Int("exit_code", result.ExitCode),
			logging.String(logging.FieldErrorHint, "inspect the organizer output and run 'librarian jobs clear' to retry"),
			logging.String(logging.FieldImpact, "download left unorganized"),
		)
		return result, err
	}
	logger.Info("organizer run completed",
		logging.String(logging.FieldEventType, "organizer_completed"),
		logging.String("organized_path", result.OrganizedPath),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}
