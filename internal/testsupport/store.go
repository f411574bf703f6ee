package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"librarian/internal/config"
	"librarian/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRequest creates a request for title on behalf of user.
func NewRequest(t testing.TB, store *ledger.Store, user, title string) *ledger.Request {
	t.Helper()

	req := &ledger.Request{
		UserID:    user,
		ChannelID: "channel-" + user,
		Candidate: ledger.Candidate{
			Title:       title,
			Author:      "Test Author",
			SizeBytes:   512 << 20,
			Seeders:     12,
			Source:      "test",
			DownloadURL: fmt.Sprintf("magnet:?xt=urn:btih:%s", title),
			MediaType:   ledger.MediaAudiobook,
		},
	}
	if err := store.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("store.CreateRequest: %v", err)
	}
	return req
}

// Downloading drives a fresh request through approval and submission until
// hash is bound. It returns the request in the downloading state.
func Downloading(t testing.TB, store *ledger.Store, user, title, hash string) *ledger.Request {
	t.Helper()

	ctx := context.Background()
	req := NewRequest(t, store, user, title)
	handle := "msg-" + req.ID
	if err := store.BindApproval(ctx, req.ID, handle); err != nil {
		t.Fatalf("store.BindApproval: %v", err)
	}
	if _, err := store.Decide(ctx, handle, ledger.OutcomeApproved, "admin"); err != nil {
		t.Fatalf("store.Decide: %v", err)
	}
	if err := store.OpenHandle(ctx, req.ID); err != nil {
		t.Fatalf("store.OpenHandle: %v", err)
	}
	if err := store.BindHash(ctx, req.ID, hash); err != nil {
		t.Fatalf("store.BindHash: %v", err)
	}
	req.State = ledger.StateDownloading
	return req
}

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: "+format, append([]any{timeout}, args...)...)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// RequireState fails the test unless the request is in want.
func RequireState(t testing.TB, store *ledger.Store, id string, want ledger.State) {
	t.Helper()

	req, err := store.GetRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetRequest: %v", err)
	}
	if req == nil {
		t.Fatalf("request %s not found", id)
	}
	if req.State != want {
		t.Fatalf("request %s state = %s, want %s (detail %q)", id, req.State, want, req.Detail)
	}
}
