package preflight

import (
	"context"

	"librarian/internal/config"
	"librarian/internal/deps"
	"librarian/internal/executor"
	"librarian/internal/library"
	"librarian/internal/torrent"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if !cfg.RemoteEnabled() && cfg.Organizer.DownloadPath != "" {
		results = append(results, CheckDirectoryAccess("Download directory", cfg.Organizer.DownloadPath))
	}

	for _, status := range deps.Check(deps.OrganizerRequirements(cfg)) {
		results = append(results, FromDependency(status))
	}

	results = append(results, CheckTorrentClient(ctx, torrent.NewQBittorrent(cfg.Torrent, nil)))

	if cfg.Library.Enabled {
		results = append(results, CheckLibrary(ctx,
			library.NewAudiobookshelf(cfg.Library.URL, cfg.Library.APIKey, cfg.Library.LibraryID, nil)))
	}

	if cfg.RemoteEnabled() {
		results = append(results, CheckRemoteHost(ctx, executor.SSHOptionsFromConfig(cfg.Remote)))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
