package torrent

import (
	"context"
	"time"
)

// Torrent is the subset of client-side torrent state the engine reads.
type Torrent struct {
	Hash        string
	Name        string
	Category    string
	SavePath    string
	ContentPath string
	State       string
	Progress    float64
	Size        int64
	AddedOn     time.Time
}

// Complete reports whether every piece has been downloaded.
func (t Torrent) Complete() bool {
	return t.Progress >= 1.0
}

// Descriptor describes a download to add.
type Descriptor struct {
	URL      string
	Category string
	SavePath string
}

// Client is the torrent-client collaborator.
type Client interface {
	// ListHashes returns every torrent the client knows, in any category.
	ListHashes(ctx context.Context) ([]Torrent, error)
	// Submit adds a download. It does not report the resulting hash.
	Submit(ctx context.Context, desc Descriptor) error
	// ListActive returns the torrents in category.
	ListActive(ctx context.Context, category string) ([]Torrent, error)
}
