package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"librarian/internal/ledger"
	"librarian/internal/services"
	"librarian/internal/testsupport"
)

func TestCreateRequestAssignsIdentity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	req := testsupport.NewRequest(t, store, "u1", "Book X")
	if req.ID == "" {
		t.Fatal("expected request ID to be assigned")
	}
	if req.State != ledger.StateCreated {
		t.Fatalf("expected created state, got %s", req.State)
	}

	fetched, err := store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if fetched == nil || fetched.Candidate.Title != "Book X" || fetched.UserID != "u1" {
		t.Fatalf("unexpected fetched request: %#v", fetched)
	}
	if fetched.CreatedAt.IsZero() {
		t.Fatal("expected created_at to round-trip")
	}

	missing, err := store.GetRequest(context.Background(), "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown request, got %#v err=%v", missing, err)
	}
}

func TestCreateRequestRejectsInFlightDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	first := testsupport.NewRequest(t, store, "u1", "Book X")
	dup := &ledger.Request{UserID: "u1", Candidate: first.Candidate}
	dup.Candidate.Title = "  book   x "
	if err := store.CreateRequest(ctx, dup); !errors.Is(err, ledger.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	other := &ledger.Request{UserID: "u2", Candidate: first.Candidate}
	if err := store.CreateRequest(ctx, other); err != nil {
		t.Fatalf("different user should be allowed: %v", err)
	}

	if err := store.BindApproval(ctx, first.ID, "msg-1"); err != nil {
		t.Fatalf("BindApproval failed: %v", err)
	}
	if _, err := store.Decide(ctx, "msg-1", ledger.OutcomeDenied, "admin"); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	again := &ledger.Request{UserID: "u1", Candidate: first.Candidate}
	if err := store.CreateRequest(ctx, again); err != nil {
		t.Fatalf("terminal request should not block a new one: %v", err)
	}
}

func TestUpdateStateEnforcesGraph(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	req := testsupport.NewRequest(t, store, "u1", "Book X")
	err := store.UpdateState(ctx, req.ID, ledger.StateDownloading, "")
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	testsupport.RequireState(t, store, req.ID, ledger.StateCreated)

	if err := store.UpdateState(ctx, "missing", ledger.StateExpired, ""); !errors.Is(err, ledger.ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}

	if err := store.UpdateState(ctx, req.ID, ledger.StateExpired, "gone"); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	testsupport.RequireState(t, store, req.ID, ledger.StateExpired)
	if err := store.UpdateState(ctx, req.ID, ledger.StateAwaitingApproval, ""); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("terminal state must not move, got %v", err)
	}
}

func TestStateGraph(t *testing.T) {
	if !ledger.StateCreated.CanTransition(ledger.StateAwaitingApproval) {
		t.Fatal("created should lead to awaiting_approval")
	}
	if ledger.StateSubmissionFailed.CanTransition(ledger.StateDownloading) {
		t.Fatal("submission_failed recovery is administrative only")
	}
	for _, state := range []ledger.State{ledger.StateDenied, ledger.StateExpired, ledger.StateCompleted, ledger.StateSubmissionFailed, ledger.StateOrganizeFailed} {
		if !state.IsTerminal() {
			t.Fatalf("%s should be terminal", state)
		}
	}
	if parsed, ok := ledger.ParseState(" Downloading "); !ok || parsed != ledger.StateDownloading {
		t.Fatalf("ParseState failed: %q %v", parsed, ok)
	}
}

func TestNonTerminalAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	a := testsupport.NewRequest(t, store, "u1", "Book A")
	testsupport.NewRequest(t, store, "u1", "Book B")
	if err := store.UpdateState(ctx, a.ID, ledger.StateExpired, ""); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	open, err := store.NonTerminal(ctx)
	if err != nil {
		t.Fatalf("NonTerminal failed: %v", err)
	}
	if len(open) != 1 || open[0].Candidate.Title != "Book B" {
		t.Fatalf("unexpected non-terminal requests: %#v", open)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[ledger.StateExpired] != 1 || stats[ledger.StateCreated] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "librarian.db")
	store, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := ledger.OpenPath(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	req := testsupport.Downloading(t, store, "u1", "Book X", "ABC123")
	store.Close()

	reopened := testsupport.MustOpenLedger(t, cfg)
	testsupport.RequireState(t, reopened, req.ID, ledger.StateDownloading)
	owner, err := reopened.RequestByHash(context.Background(), "abc123")
	if err != nil || owner == nil || owner.ID != req.ID {
		t.Fatalf("expected hash owner after reopen, got %#v err=%v", owner, err)
	}
}
