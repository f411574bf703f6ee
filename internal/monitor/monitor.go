package monitor

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"librarian/internal/chat"
	"librarian/internal/config"
	"librarian/internal/executor"
	"librarian/internal/ledger"
	"librarian/internal/library"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/notifications"
	"librarian/internal/torrent"
)

// RestartDetail is recorded on jobs found running when the daemon starts.
const RestartDetail = "interrupted by restart"

const (
	orphanCacheSize = 1024
	orphanCacheTTL  = 6 * time.Hour
)

// Lister lists the torrents in a category.
type Lister interface {
	ListActive(ctx context.Context, category string) ([]torrent.Torrent, error)
}

// Runner executes organizer jobs.
type Runner interface {
	Run(ctx context.Context, job executor.Job) (executor.Result, error)
}

// Dependencies are the collaborators a Monitor drives.
type Dependencies struct {
	Store     *ledger.Store
	Torrents  Lister
	Runner    Runner
	Messenger chat.Messenger
	Notifier  notifications.Service
	Scanner   library.Scanner
	Logger    *slog.Logger
}

type sweeper struct {
	name string
	fn   func(context.Context) error
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Running   bool
	InFlight  []string
	LastTick  time.Time
	LastError string
}

// Monitor is the completion polling loop.
type Monitor struct {
	store     *ledger.Store
	torrents  Lister
	runner    Runner
	messenger chat.Messenger
	notifier  notifications.Service
	scanner   library.Scanner
	logger    *slog.Logger

	pollInterval time.Duration
	category     string
	target       string

	sem      *semaphore.Weighted
	orphans  *expirable.LRU[string, struct{}]
	sweepers []sweeper

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	runCtx   context.Context
	loopWG   sync.WaitGroup
	jobWG    sync.WaitGroup
	inFlight map[string]struct{}
	lastTick time.Time
	lastErr  error
}

// New constructs a monitor from configuration and collaborators.
func New(cfg *config.Config, deps Dependencies) *Monitor {
	scanner := deps.Scanner
	if scanner == nil {
		scanner = library.NewConfiguredScanner(&config.Config{})
	}
	limit := cfg.Monitor.MaxConcurrentJobs
	if limit <= 0 {
		limit = 1
	}
	interval := config.Seconds(cfg.Monitor.PollInterval)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	target := cfg.Organizer.Target
	if target == "" {
		target = config.TargetLocal
	}
	return &Monitor{
		store:        deps.Store,
		torrents:     deps.Torrents,
		runner:       deps.Runner,
		messenger:    deps.Messenger,
		notifier:     deps.Notifier,
		scanner:      scanner,
		logger:       logging.NewComponentLogger(deps.Logger, "monitor"),
		pollInterval: interval,
		category:     cfg.Torrent.Category,
		target:       target,
		sem:          semaphore.NewWeighted(int64(limit)),
		orphans:      expirable.NewLRU[string, struct{}](orphanCacheSize, nil, orphanCacheTTL),
		inFlight:     make(map[string]struct{}),
	}
}

// AddSweeper registers fn to run at the end of every tick.
func (m *Monitor) AddSweeper(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepers = append(m.sweepers, sweeper{name: name, fn: fn})
}

// Recover fails jobs left running by a previous process. It must run before
// Start.
func (m *Monitor) Recover(ctx context.Context) (int, error) {
	count, err := m.store.FailInterruptedJobs(ctx, RestartDetail)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logging.WarnWithContext(m.logger, "failed jobs interrupted by restart", "jobs_interrupted",
			logging.Int("count", count),
			logging.String(logging.FieldErrorHint, "run 'librarian jobs clear <hash>' to organize them again"),
			logging.String(logging.FieldImpact, "interrupted downloads stay unorganized until cleared"),
		)
	}
	return count, nil
}

// Start launches the polling loop. The first tick runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("monitor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.loopWG.Add(1)
	m.mu.Unlock()

	go m.loop(runCtx)
	m.logger.Info("completion monitor started",
		logging.String(logging.FieldEventType, "monitor_started"),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String("category", m.category),
	)
	return nil
}

// Stop cancels the loop and in-flight jobs and waits for both.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.loopWG.Wait()
	m.jobWG.Wait()
}

// Wait blocks until every dispatched job has finished.
func (m *Monitor) Wait() {
	m.jobWG.Wait()
}

// Status reports the loop state and the hashes being organized.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := Status{Running: m.running, LastTick: m.lastTick}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	for hash := range m.inFlight {
		status.InFlight = append(status.InFlight, hash)
	}
	sort.Strings(status.InFlight)
	return status
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.loopWG.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		_ = m.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one polling pass. Per-download failures are logged and never
// abort the pass.
func (m *Monitor) Tick(ctx context.Context) error {
	err := m.tick(ctx)
	m.mu.Lock()
	m.lastTick = time.Now()
	m.lastErr = err
	m.mu.Unlock()

	switch {
	case err == nil:
		metrics.RecordTick("ok")
	case ctx.Err() != nil:
	default:
		metrics.RecordTick("error")
		logging.WarnWithContext(m.logger, "completion poll failed", "monitor_tick_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check torrent.url and ledger access"),
			logging.String(logging.FieldImpact, "completed downloads are picked up on the next poll"),
		)
	}
	return err
}

func (m *Monitor) tick(ctx context.Context) error {
	torrents, err := m.torrents.ListActive(ctx, m.category)
	if err != nil {
		return err
	}
	for _, t := range torrents {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !t.Complete() {
			continue
		}
		m.handleComplete(ctx, t)
	}

	queued, err := m.store.ListJobs(ctx, ledger.JobQueued)
	if err != nil {
		return err
	}
	for _, job := range queued {
		m.dispatch(ctx, job)
	}

	m.mu.Lock()
	sweepers := append([]sweeper(nil), m.sweepers...)
	m.mu.Unlock()
	for _, s := range sweepers {
		if err := s.fn(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "sweeper failed", "sweeper_failed",
				logging.String("sweeper", s.name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "sweep retried on the next poll"),
			)
		}
	}
	return nil
}

// handleComplete creates the organizer job for a finished download.
func (m *Monitor) handleComplete(ctx context.Context, t torrent.Torrent) {
	hash := ledger.NormalizeHash(t.Hash)
	logger := m.logger.With(logging.String(logging.FieldHash, hash))

	existing, err := m.store.FindJobByHash(ctx, hash)
	if err != nil {
		logger.Warn("job lookup failed", logging.Error(err), logging.String(logging.FieldEventType, "job_lookup_failed"))
		return
	}
	if existing != nil {
		return
	}

	owner, err := m.store.RequestByHash(ctx, hash)
	if err != nil {
		logger.Warn("owner lookup failed", logging.Error(err), logging.String(logging.FieldEventType, "owner_lookup_failed"))
		return
	}
	if owner == nil {
		if _, seen := m.orphans.Get(hash); !seen {
			m.orphans.Add(hash, struct{}{})
			metrics.RecordOrphan()
			logging.WarnWithContext(logger, "completed torrent has no request", "orphan_torrent",
				logging.String("name", t.Name),
				logging.String(logging.FieldErrorHint, "bind it with 'librarian requests bind' or move it out of the category"),
				logging.String(logging.FieldImpact, "torrent will not be organized"),
			)
		}
		return
	}
	if owner.State != ledger.StateDownloading {
		return
	}

	job, err := m.store.CreateJob(ctx, ledger.JobSpec{
		Hash:       hash,
		RequestID:  owner.ID,
		Target:     m.target,
		Name:       t.Name,
		SourcePath: contentPath(t),
	})
	if errors.Is(err, ledger.ErrDuplicateJob) {
		return
	}
	if err != nil {
		logging.WarnWithContext(logger, "create organizer job failed", "job_create_failed",
			logging.Error(err),
			logging.String(logging.FieldRequestID, owner.ID),
			logging.String(logging.FieldImpact, "job creation retried on the next poll"),
		)
		return
	}
	metrics.RecordTransition(string(ledger.StateOrganizing))
	logger.Info("download complete, organizer job created",
		logging.String(logging.FieldEventType, "job_created"),
		logging.String(logging.FieldRequestID, owner.ID),
		logging.String("target", job.Target),
		logging.String("source_path", job.SourcePath),
	)
	m.dispatch(ctx, job)
}

func contentPath(t torrent.Torrent) string {
	if t.ContentPath != "" {
		return t.ContentPath
	}
	if t.SavePath != "" && t.Name != "" {
		return path.Join(t.SavePath, t.Name)
	}
	return t.SavePath
}

// dispatch starts job unless it is already running here or the pool is full.
// A full pool leaves the job queued for the next tick.
func (m *Monitor) dispatch(ctx context.Context, job *ledger.OrganizerJob) {
	m.mu.Lock()
	if _, busy := m.inFlight[job.Hash]; busy {
		m.mu.Unlock()
		return
	}
	if !m.sem.TryAcquire(1) {
		m.mu.Unlock()
		m.logger.Debug("job pool full, leaving job queued", logging.String(logging.FieldHash, job.Hash))
		return
	}
	m.inFlight[job.Hash] = struct{}{}
	jobCtx := ctx
	if m.runCtx != nil && m.running {
		jobCtx = m.runCtx
	}
	m.jobWG.Add(1)
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, job.Hash)
			m.mu.Unlock()
			m.sem.Release(1)
			m.jobWG.Done()
		}()
		m.runJob(jobCtx, job)
	}()
}
