package torrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"golang.org/x/sync/singleflight"

	"librarian/internal/config"
	"librarian/internal/logging"
	"librarian/internal/services"
)

// QBittorrent implements Client against the qBittorrent WebAPI.
type QBittorrent struct {
	client   *qbt.Client
	category string
	savePath string
	logger   *slog.Logger

	loginMu  sync.Mutex
	loggedIn bool
	group    singleflight.Group
}

// NewQBittorrent builds a client from configuration. No request is made
// until the first call.
func NewQBittorrent(cfg config.Torrent, logger *slog.Logger) *QBittorrent {
	client := qbt.NewClient(qbt.Config{
		Host:          cfg.URL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		TLSSkipVerify: cfg.TLSSkipVerify,
		Timeout:       cfg.Timeout,
	})
	return &QBittorrent{
		client:   client,
		category: cfg.Category,
		savePath: cfg.SavePath,
		logger:   logging.NewComponentLogger(logger, "torrent"),
	}
}

func (q *QBittorrent) ensureLogin(ctx context.Context) error {
	q.loginMu.Lock()
	defer q.loginMu.Unlock()
	if q.loggedIn {
		return nil
	}
	if err := q.client.LoginCtx(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "torrent", "login", "qBittorrent login failed", err)
	}
	q.loggedIn = true
	q.logger.Debug("qbittorrent session established")
	return nil
}

func (q *QBittorrent) resetLogin() {
	q.loginMu.Lock()
	q.loggedIn = false
	q.loginMu.Unlock()
}

// ListHashes returns every torrent known to the client. Concurrent callers
// share one in-flight request.
func (q *QBittorrent) ListHashes(ctx context.Context) ([]Torrent, error) {
	value, err, _ := q.group.Do("all", func() (any, error) {
		return q.list(ctx, qbt.TorrentFilterOptions{})
	})
	if err != nil {
		return nil, err
	}
	torrents := value.([]Torrent)
	return append([]Torrent(nil), torrents...), nil
}

// ListActive returns the torrents filed under category.
func (q *QBittorrent) ListActive(ctx context.Context, category string) ([]Torrent, error) {
	if category == "" {
		category = q.category
	}
	return q.list(ctx, qbt.TorrentFilterOptions{Category: category})
}

// Lookup returns the torrents with the given hashes.
func (q *QBittorrent) Lookup(ctx context.Context, hashes []string) ([]Torrent, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	return q.list(ctx, qbt.TorrentFilterOptions{Hashes: hashes})
}

func (q *QBittorrent) list(ctx context.Context, filter qbt.TorrentFilterOptions) ([]Torrent, error) {
	if err := q.ensureLogin(ctx); err != nil {
		return nil, err
	}
	raw, err := q.client.GetTorrentsCtx(ctx, filter)
	if err != nil {
		q.resetLogin()
		return nil, services.Wrap(services.ErrTransient, "torrent", "list", "list torrents", err)
	}
	out := make([]Torrent, 0, len(raw))
	for _, t := range raw {
		out = append(out, convert(t))
	}
	return out, nil
}

// Submit adds desc.URL to the client under the configured category and save
// path unless desc overrides them.
func (q *QBittorrent) Submit(ctx context.Context, desc Descriptor) error {
	url := strings.TrimSpace(desc.URL)
	if url == "" {
		return services.Wrap(services.ErrValidation, "torrent", "submit", "download url is empty", nil)
	}
	if err := q.ensureLogin(ctx); err != nil {
		return err
	}
	options := map[string]string{}
	if category := firstNonEmpty(desc.Category, q.category); category != "" {
		options["category"] = category
	}
	if savePath := firstNonEmpty(desc.SavePath, q.savePath); savePath != "" {
		options["savepath"] = savePath
	}
	if err := q.client.AddTorrentFromUrlCtx(ctx, url, options); err != nil {
		q.resetLogin()
		return services.Wrap(services.ErrTransient, "torrent", "submit", "add torrent", err)
	}
	q.logger.Info("torrent submitted",
		logging.String(logging.FieldEventType, "torrent_submitted"),
		logging.String("category", options["category"]),
	)
	return nil
}

// Check verifies connectivity and returns the client application version.
func (q *QBittorrent) Check(ctx context.Context) (string, error) {
	if err := q.ensureLogin(ctx); err != nil {
		return "", err
	}
	version, err := q.client.GetAppVersionCtx(ctx)
	if err != nil {
		q.resetLogin()
		return "", services.Wrap(services.ErrTransient, "torrent", "version", "query qBittorrent version", err)
	}
	if version == "" {
		return "", errors.New("qBittorrent returned an empty version")
	}
	return version, nil
}

func convert(t qbt.Torrent) Torrent {
	return Torrent{
		Hash:        strings.ToLower(t.Hash),
		Name:        t.Name,
		Category:    t.Category,
		SavePath:    t.SavePath,
		ContentPath: t.ContentPath,
		State:       string(t.State),
		Progress:    t.Progress,
		Size:        t.Size,
		AddedOn:     time.Unix(t.AddedOn, 0).UTC(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// String identifies the client in logs and status output.
func (q *QBittorrent) String() string {
	return fmt.Sprintf("qbittorrent(category=%s)", q.category)
}
