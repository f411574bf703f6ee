package daemon

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"librarian/internal/approval"
	"librarian/internal/config"
	"librarian/internal/executor"
	"librarian/internal/ledger"
	"librarian/internal/monitor"
	"librarian/internal/resolver"
	"librarian/internal/testsupport"
	"librarian/internal/torrent"
)

type stubRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *stubRunner) Run(context.Context, executor.Job) (executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return executor.Result{OrganizedPath: "/library/book"}, nil
}

type fixture struct {
	cfg       *config.Config
	store     *ledger.Store
	torrents  *testsupport.FakeTorrents
	messenger *testsupport.FakeMessenger
	notifier  *testsupport.FakeNotifier
	daemon    *Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	f := &fixture{
		cfg:       cfg,
		store:     testsupport.MustOpenLedger(t, cfg),
		torrents:  testsupport.NewFakeTorrents(),
		messenger: testsupport.NewFakeMessenger(),
		notifier:  &testsupport.FakeNotifier{},
	}
	var mu sync.Mutex
	var submissions int
	f.torrents.OnSubmit = func(desc torrent.Descriptor) torrent.Torrent {
		mu.Lock()
		defer mu.Unlock()
		submissions++
		return torrent.Torrent{Hash: fmt.Sprintf("h%d", submissions), Name: desc.URL, Category: desc.Category}
	}
	res := resolver.New(f.torrents, f.store, resolver.Options{
		Timeout:        300 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
		TitleThreshold: 0.6,
	}, nil)
	coord := approval.New(cfg, approval.Dependencies{
		Store:     f.store,
		Resolver:  res,
		Torrents:  f.torrents,
		Messenger: f.messenger,
		Notifier:  f.notifier,
	})
	mon := monitor.New(cfg, monitor.Dependencies{
		Store:     f.store,
		Torrents:  f.torrents,
		Runner:    &stubRunner{},
		Messenger: f.messenger,
		Notifier:  f.notifier,
		Scanner:   &testsupport.FakeScanner{},
	})
	d, err := New(cfg, Dependencies{
		Store:       f.store,
		Coordinator: coord,
		Monitor:     mon,
		Notifier:    f.notifier,
	})
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	t.Cleanup(d.Stop)
	f.daemon = d
	return f
}
