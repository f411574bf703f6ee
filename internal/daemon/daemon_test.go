package daemon

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"librarian/internal/api"
	"librarian/internal/ledger"
	"librarian/internal/pathmap"
	"librarian/internal/services"
	"librarian/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !f.daemon.Running() {
		t.Fatal("expected daemon to be running")
	}
	if err := f.daemon.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected second start to fail, got %v", err)
	}
	if f.daemon.APIAddress() == "" {
		t.Fatal("expected api server address")
	}

	status := f.daemon.Status(ctx)
	if !status.Running || status.LockFilePath != f.cfg.LockPath() || status.DatabasePath == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	testsupport.Eventually(t, 2*time.Second, func() bool {
		return f.daemon.Status(ctx).Monitor.Running
	}, "monitor did not start")

	f.daemon.Stop()
	if f.daemon.Running() {
		t.Fatal("expected daemon to be stopped")
	}
	if f.daemon.APIAddress() != "" {
		t.Fatal("expected api server to be closed")
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	f.daemon.Stop()
}

func TestSecondInstanceCannotLock(t *testing.T) {
	f := newFixture(t)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	other, err := New(f.cfg, Dependencies{
		Store:       f.store,
		Coordinator: f.daemon.coordinator,
		Monitor:     f.daemon.monitor,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "another librarian daemon") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestStartResumesCreatedRequests(t *testing.T) {
	f := newFixture(t)
	req := testsupport.NewRequest(t, f.store, "user-1", "Piranesi")

	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	testsupport.RequireState(t, f.store, req.ID, ledger.StateAwaitingApproval)
	if len(f.messenger.Prompts()) != 1 {
		t.Fatalf("expected one prompt, got %d", len(f.messenger.Prompts()))
	}
}

func TestCreateAndDecideThroughDaemon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.daemon.CreateRequest(ctx, api.CreateRequestPayload{
		UserID: "user-1",
		Candidate: api.CandidatePayload{
			Title:       "The Hobbit",
			DownloadURL: "magnet:?xt=urn:btih:hobbit",
		},
	})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.State != ledger.StateAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", req.State)
	}

	detail, err := f.daemon.DescribeRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("DescribeRequest failed: %v", err)
	}
	decision, err := f.daemon.Decide(ctx, api.ApprovalPayload{
		MessageHandle: detail.Approval.MessageHandle,
		Outcome:       "denied",
		DeciderID:     "admin",
	})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decision.Request.State != ledger.StateDenied {
		t.Fatalf("expected denied, got %s", decision.Request.State)
	}

	_, err = f.daemon.Decide(ctx, api.ApprovalPayload{
		MessageHandle: detail.Approval.MessageHandle,
		Outcome:       "approved",
		DeciderID:     "admin",
	})
	if !errors.Is(err, ledger.ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestDescribeUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.daemon.DescribeRequest(context.Background(), "missing")
	if !errors.Is(err, ledger.ErrRequestNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestClearJobReturnsRequestToDownloading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := testsupport.Downloading(t, f.store, "user-1", "Dune", "abc123")

	if _, err := f.store.CreateJob(ctx, ledger.JobSpec{Hash: "abc123", RequestID: req.ID, Target: "local", Name: "Dune", SourcePath: "/downloads/Dune"}); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := f.store.ClaimJob(ctx, "abc123"); err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if err := f.store.UpdateJob(ctx, "abc123", ledger.JobFailed, ledger.JobResult{Error: "exit status 2"}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	if err := f.daemon.ClearJob(ctx, "ABC123"); err != nil {
		t.Fatalf("ClearJob failed: %v", err)
	}
	testsupport.RequireState(t, f.store, req.ID, ledger.StateDownloading)
	jobs, err := f.daemon.ListJobs(ctx, nil)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected cleared job to be gone, got %d", len(jobs))
	}
}

func TestTranslateUsesConfiguredMappings(t *testing.T) {
	f := newFixture(t)
	translator, err := pathmap.New([]pathmap.Mapping{{Torrent: "/seed/downloads", Organizer: "/mnt/seed"}})
	if err != nil {
		t.Fatalf("pathmap.New failed: %v", err)
	}
	f.daemon.translator = translator

	got, err := f.daemon.Translate("/seed/downloads/Dune/part1.mp3", pathmap.ToOrganizer)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "/mnt/seed/Dune/part1.mp3" {
		t.Fatalf("unexpected translation %q", got)
	}
	if _, err := f.daemon.Translate("/elsewhere/file", pathmap.ToOrganizer); !errors.Is(err, pathmap.ErrNoMappingConfigured) {
		t.Fatalf("expected ErrNoMappingConfigured, got %v", err)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	f := newFixture(t)
	sent, message, err := f.daemon.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if sent || !strings.Contains(message, "not configured") {
		t.Fatalf("unexpected result sent=%v message=%q", sent, message)
	}
}
