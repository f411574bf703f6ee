package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"librarian/internal/config"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/services"
	"librarian/internal/textutil"
	"librarian/internal/torrent"
)

var (
	// ErrAmbiguousResolution reports several new torrents that could not be told apart.
	ErrAmbiguousResolution = errors.New("ambiguous torrent resolution")
	// ErrResolutionTimeout reports that no new torrent appeared before the deadline.
	ErrResolutionTimeout = errors.New("torrent resolution timed out")
)

// HashLister lists every torrent the client knows.
type HashLister interface {
	ListHashes(ctx context.Context) ([]torrent.Torrent, error)
}

// Bindings exposes the ledger's hash ownership.
type Bindings interface {
	BoundHashes(ctx context.Context) (map[string]string, error)
}

// SubmitFunc performs the submission whose hash is being resolved.
type SubmitFunc func(ctx context.Context) error

// Options tunes polling and disambiguation.
type Options struct {
	Timeout        time.Duration
	PollInterval   time.Duration
	TitleThreshold float64
	Now            func() time.Time
}

// OptionsFromConfig converts the resolution config section.
func OptionsFromConfig(cfg config.Resolution) Options {
	return Options{
		Timeout:        config.Seconds(cfg.Timeout),
		PollInterval:   config.Seconds(cfg.PollInterval),
		TitleThreshold: cfg.TitleThreshold,
	}
}

// Result describes a resolved torrent.
type Result struct {
	Torrent torrent.Torrent
	// Method names the rule that picked the torrent: single, title or timestamp.
	Method string
}

// Resolver implements snapshot-diff hash resolution.
type Resolver struct {
	hashes   HashLister
	bindings Bindings
	opts     Options
	logger   *slog.Logger
}

// New constructs a resolver. Zero options fall back to the defaults.
func New(hashes HashLister, bindings Bindings, opts Options, logger *slog.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.TitleThreshold <= 0 {
		opts.TitleThreshold = 0.6
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		hashes:   hashes,
		bindings: bindings,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "resolver"),
	}
}

// Resolve submits via submit and returns the torrent it produced. The
// request's candidate title is used to disambiguate concurrent additions.
func (r *Resolver) Resolve(ctx context.Context, req *ledger.Request, submit SubmitFunc) (Result, error) {
	if req == nil {
		return Result{}, errors.New("resolve: request is nil")
	}
	logger := logging.WithContext(ctx, r.logger)
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		logger = logger.With(logging.String(logging.FieldRequestID, req.ID))
	}
	started := r.opts.Now()

	before, err := r.snapshot(ctx)
	if err != nil {
		metrics.RecordResolution("error", 0)
		return Result{}, fmt.Errorf("snapshot torrents: %w", err)
	}

	submittedAt := r.opts.Now()
	if err := submit(ctx); err != nil {
		metrics.RecordResolution("error", 0)
		return Result{}, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			metrics.RecordResolution("timeout", r.opts.Now().Sub(started))
			logging.WarnWithContext(logger, "no new torrent appeared after submission", "resolution_timeout",
				logging.Duration("timeout", r.opts.Timeout),
				logging.String(logging.FieldErrorHint, "the torrent may still be present in the client; bind it with 'librarian requests bind'"),
				logging.String(logging.FieldImpact, "request moves to submission_failed"),
			)
			return Result{}, services.Wrap(services.ErrTimeout, "resolver", "poll",
				fmt.Sprintf("no new torrent within %s", r.opts.Timeout), ErrResolutionTimeout)
		case <-ticker.C:
		}

		fresh, err := r.newTorrents(pollCtx, before)
		if err != nil {
			if pollCtx.Err() != nil {
				continue
			}
			logger.Debug("torrent poll failed", logging.Error(err))
			continue
		}
		if len(fresh) == 0 {
			continue
		}

		result, err := r.pick(req.Candidate.Title, fresh, submittedAt)
		elapsed := r.opts.Now().Sub(started)
		if err != nil {
			metrics.RecordResolution("ambiguous", elapsed)
			logging.WarnWithContext(logger, "several new torrents could not be told apart", "resolution_ambiguous",
				logging.Int("candidates", len(fresh)),
				logging.String("hashes", joinHashes(fresh)),
				logging.String(logging.FieldErrorHint, "bind the correct hash with 'librarian requests bind'"),
				logging.String(logging.FieldImpact, "request moves to submission_failed"),
			)
			return Result{}, err
		}
		metrics.RecordResolution(result.Method, elapsed)
		logger.Info("torrent resolved",
			logging.String(logging.FieldEventType, "hash_resolved"),
			logging.String(logging.FieldHash, result.Torrent.Hash),
			logging.String("method", result.Method),
			logging.Duration("elapsed", elapsed),
		)
		return result, nil
	}
}

func (r *Resolver) snapshot(ctx context.Context) (map[string]struct{}, error) {
	torrents, err := r.hashes.ListHashes(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(torrents))
	for _, t := range torrents {
		set[ledger.NormalizeHash(t.Hash)] = struct{}{}
	}
	return set, nil
}

// newTorrents lists hashes absent from before and not bound to any request.
func (r *Resolver) newTorrents(ctx context.Context, before map[string]struct{}) ([]torrent.Torrent, error) {
	torrents, err := r.hashes.ListHashes(ctx)
	if err != nil {
		return nil, err
	}
	bound, err := r.bindings.BoundHashes(ctx)
	if err != nil {
		return nil, err
	}
	var fresh []torrent.Torrent
	for _, t := range torrents {
		hash := ledger.NormalizeHash(t.Hash)
		if _, seen := before[hash]; seen {
			continue
		}
		if _, owned := bound[hash]; owned {
			continue
		}
		t.Hash = hash
		fresh = append(fresh, t)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Hash < fresh[j].Hash })
	return fresh, nil
}

func (r *Resolver) pick(title string, fresh []torrent.Torrent, submittedAt time.Time) (Result, error) {
	if len(fresh) == 1 {
		return Result{Torrent: fresh[0], Method: "single"}, nil
	}

	var titled []torrent.Torrent
	for _, t := range fresh {
		if textutil.TitleSimilarity(title, t.Name) >= r.opts.TitleThreshold {
			titled = append(titled, t)
		}
	}
	if len(titled) == 1 {
		return Result{Torrent: titled[0], Method: "title"}, nil
	}

	// qBittorrent reports added_on in whole seconds.
	floor := submittedAt.Truncate(time.Second)
	var recent []torrent.Torrent
	for _, t := range fresh {
		if !t.AddedOn.Before(floor) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 1 {
		return Result{Torrent: recent[0], Method: "timestamp"}, nil
	}

	return Result{}, services.Wrap(services.ErrConfiguration, "resolver", "disambiguate",
		fmt.Sprintf("%d new torrents match (%s)", len(fresh), joinHashes(fresh)), ErrAmbiguousResolution)
}

func joinHashes(torrents []torrent.Torrent) string {
	hashes := make([]string, len(torrents))
	for i, t := range torrents {
		hashes[i] = t.Hash
	}
	return strings.Join(hashes, ",")
}
