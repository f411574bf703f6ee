package testsupport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"librarian/internal/torrent"
)

// FakeTorrents is an in-memory torrent.Client.
type FakeTorrents struct {
	mu        sync.Mutex
	torrents  []torrent.Torrent
	submitted []torrent.Descriptor
	listErr   error
	submitErr error

	// OnSubmit, when set, runs after a submission is recorded. Returning a
	// torrent with a non-empty hash adds it to the client.
	OnSubmit func(desc torrent.Descriptor) torrent.Torrent
}

// NewFakeTorrents returns a client seeded with torrents.
func NewFakeTorrents(seed ...torrent.Torrent) *FakeTorrents {
	f := &FakeTorrents{}
	for _, t := range seed {
		f.Add(t)
	}
	return f
}

// Add inserts or replaces a torrent.
func (f *FakeTorrents) Add(t torrent.Torrent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Hash = strings.ToLower(t.Hash)
	if t.AddedOn.IsZero() {
		t.AddedOn = time.Now().UTC()
	}
	for i := range f.torrents {
		if f.torrents[i].Hash == t.Hash {
			f.torrents[i] = t
			return
		}
	}
	f.torrents = append(f.torrents, t)
}

// SetProgress updates the download progress of hash.
func (f *FakeTorrents) SetProgress(hash string, progress float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.torrents {
		if f.torrents[i].Hash == strings.ToLower(hash) {
			f.torrents[i].Progress = progress
		}
	}
}

// FailList makes subsequent listings return err (nil restores them).
func (f *FakeTorrents) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailSubmit makes subsequent submissions return err.
func (f *FakeTorrents) FailSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// Submitted returns every recorded submission.
func (f *FakeTorrents) Submitted() []torrent.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]torrent.Descriptor(nil), f.submitted...)
}

func (f *FakeTorrents) ListHashes(ctx context.Context) ([]torrent.Torrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]torrent.Torrent(nil), f.torrents...), nil
}

func (f *FakeTorrents) ListActive(ctx context.Context, category string) ([]torrent.Torrent, error) {
	all, err := f.ListHashes(ctx)
	if err != nil {
		return nil, err
	}
	var out []torrent.Torrent
	for _, t := range all {
		if category == "" || t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *FakeTorrents) Submit(ctx context.Context, desc torrent.Descriptor) error {
	if strings.TrimSpace(desc.URL) == "" {
		return errors.New("empty url")
	}
	f.mu.Lock()
	if f.submitErr != nil {
		err := f.submitErr
		f.mu.Unlock()
		return err
	}
	f.submitted = append(f.submitted, desc)
	hook := f.OnSubmit
	f.mu.Unlock()

	if hook != nil {
		if t := hook(desc); t.Hash != "" {
			if t.Category == "" {
				t.Category = desc.Category
			}
			f.Add(t)
		}
	}
	return nil
}
