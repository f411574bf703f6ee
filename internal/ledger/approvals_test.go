package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"librarian/internal/ledger"
	"librarian/internal/services"
	"librarian/internal/testsupport"
)

func TestDecideAppliesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	req := testsupport.NewRequest(t, store, "u1", "Book X")
	if err := store.BindApproval(ctx, req.ID, "m1"); err != nil {
		t.Fatalf("BindApproval failed: %v", err)
	}
	testsupport.RequireState(t, store, req.ID, ledger.StateAwaitingApproval)

	decided, err := store.Decide(ctx, "m1", ledger.OutcomeApproved, "admin")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decided.State != ledger.StateApproved {
		t.Fatalf("expected approved, got %s", decided.State)
	}

	_, err = store.Decide(ctx, "m1", ledger.OutcomeDenied, "admin")
	if !errors.Is(err, ledger.ErrAlreadyDecided) || !ledger.IsBenign(err) {
		t.Fatalf("expected benign ErrAlreadyDecided, got %v", err)
	}
	testsupport.RequireState(t, store, req.ID, ledger.StateApproved)

	approval, err := store.ApprovalByHandle(ctx, "m1")
	if err != nil {
		t.Fatalf("ApprovalByHandle failed: %v", err)
	}
	if approval.Outcome != ledger.OutcomeApproved || approval.DeciderID != "admin" || approval.DecidedAt == nil {
		t.Fatalf("unexpected approval: %#v", approval)
	}
}

func TestDecideConcurrentDeliveries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	req := testsupport.NewRequest(t, store, "u1", "Book X")
	if err := store.BindApproval(ctx, req.ID, "m1"); err != nil {
		t.Fatalf("BindApproval failed: %v", err)
	}

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		benign  int
	)
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Decide(ctx, "m1", ledger.OutcomeApproved, "admin")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ledger.ErrAlreadyDecided):
				benign++
			default:
				t.Errorf("unexpected Decide error: %v", err)
			}
		}()
	}
	wg.Wait()

	if applied != 1 || benign != deliveries-1 {
		t.Fatalf("expected one applied decision, got applied=%d benign=%d", applied, benign)
	}
	testsupport.RequireState(t, store, req.ID, ledger.StateApproved)
}

func TestDecideUnknownHandle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	_, err := store.Decide(context.Background(), "nope", ledger.OutcomeApproved, "admin")
	if !errors.Is(err, ledger.ErrUnknownApproval) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrUnknownApproval, got %v", err)
	}
}

func TestBindApprovalRequiresCreated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	req := testsupport.NewRequest(t, store, "u1", "Book X")
	if err := store.BindApproval(ctx, req.ID, "m1"); err != nil {
		t.Fatalf("BindApproval failed: %v", err)
	}
	if err := store.BindApproval(ctx, req.ID, "m2"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on rebind, got %v", err)
	}

	other := testsupport.NewRequest(t, store, "u2", "Book Y")
	if err := store.BindApproval(ctx, other.ID, "m1"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected handle reuse to be rejected, got %v", err)
	}
	testsupport.RequireState(t, store, other.ID, ledger.StateCreated)
}

func TestExpireApprovals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	waiting := testsupport.NewRequest(t, store, "u1", "Book X")
	if err := store.BindApproval(ctx, waiting.ID, "m1"); err != nil {
		t.Fatalf("BindApproval failed: %v", err)
	}
	orphan := testsupport.NewRequest(t, store, "u1", "Book Y")
	decided := testsupport.NewRequest(t, store, "u1", "Book Z")
	if err := store.BindApproval(ctx, decided.ID, "m3"); err != nil {
		t.Fatalf("BindApproval failed: %v", err)
	}
	if _, err := store.Decide(ctx, "m3", ledger.OutcomeApproved, "admin"); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	none, err := store.ExpireApprovals(ctx, time.Now().Add(-time.Hour))
	if err != nil || len(none) != 0 {
		t.Fatalf("expected nothing expired before cutoff, got %d err=%v", len(none), err)
	}

	expired, err := store.ExpireApprovals(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ExpireApprovals failed: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expected two expired requests, got %d", len(expired))
	}
	testsupport.RequireState(t, store, waiting.ID, ledger.StateExpired)
	testsupport.RequireState(t, store, orphan.ID, ledger.StateExpired)
	testsupport.RequireState(t, store, decided.ID, ledger.StateApproved)

	approval, err := store.ApprovalByRequest(ctx, waiting.ID)
	if err != nil {
		t.Fatalf("ApprovalByRequest failed: %v", err)
	}
	if approval.Outcome != ledger.OutcomeExpired || approval.DeciderID != ledger.ExpiryDecider {
		t.Fatalf("unexpected expired approval: %#v", approval)
	}
	if _, err := store.Decide(ctx, "m1", ledger.OutcomeApproved, "admin"); !errors.Is(err, ledger.ErrAlreadyDecided) {
		t.Fatalf("late decision should be benign, got %v", err)
	}
}
