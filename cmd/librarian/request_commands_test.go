package main

import (
	"encoding/json"
	"testing"

	"librarian/internal/api"
	"librarian/internal/ledger"
	"librarian/internal/testsupport"
)

func TestRequestsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	req := testsupport.NewRequest(t, env.store, "user-1", "Project Hail Mary")

	out, _, err := runCLI(t, []string{"requests", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("requests list: %v", err)
	}
	requireContains(t, out, req.ID)
	requireContains(t, out, "Project Hail Mary")

	out, _, err = runCLI(t, []string{"requests", "list", "--state", "denied,expired"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("requests list --state: %v", err)
	}
	requireContains(t, out, "No requests found")

	if _, _, err := runCLI(t, []string{"requests", "list", "--state", "bogus"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown state to fail")
	}

	out, _, err = runCLI(t, []string{"requests", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("requests list --json: %v", err)
	}
	var views []api.RequestView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(views) != 1 || views[0].State != string(ledger.StateCreated) {
		t.Fatalf("unexpected json listing: %+v", views)
	}

	out, _, err = runCLI(t, []string{"requests", "show", req.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("requests show: %v", err)
	}
	requireContains(t, out, "State:     created")
	requireContains(t, out, "User:      user-1")
}

func TestApproveAndDeny(t *testing.T) {
	env := setupCLITestEnv(t)
	req := testsupport.NewRequest(t, env.store, "user-1", "Dune")

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")
	testsupport.RequireState(t, env.store, req.ID, ledger.StateAwaitingApproval)

	out, _, err = runCLI(t, []string{"requests", "show", req.ID, "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("requests show --json: %v", err)
	}
	var detail api.RequestDetail
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Approval == nil {
		t.Fatalf("expected approval in detail, got %+v", detail)
	}
	handle := detail.Approval.MessageHandle

	out, _, err = runCLI(t, []string{"deny", handle, "--as", "admin"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	requireContains(t, out, "denied")
	testsupport.RequireState(t, env.store, req.ID, ledger.StateDenied)

	out, _, err = runCLI(t, []string{"approve", handle, "--as", "admin"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("approve after deny: %v", err)
	}
	requireContains(t, out, "already decided")
	testsupport.RequireState(t, env.store, req.ID, ledger.StateDenied)
}

func TestDeciderIDDefaults(t *testing.T) {
	t.Setenv("USER", "")
	if got := deciderID(""); got != "cli" {
		t.Fatalf("deciderID fallback = %q, want cli", got)
	}
	t.Setenv("USER", "ops")
	if got := deciderID(" "); got != "ops" {
		t.Fatalf("deciderID from USER = %q, want ops", got)
	}
	if got := deciderID("admin"); got != "admin" {
		t.Fatalf("deciderID flag = %q, want admin", got)
	}
}

func TestSplitFilters(t *testing.T) {
	got := splitFilters([]string{"created, denied", "", "expired"})
	if len(got) != 3 || got[0] != "created" || got[1] != "denied" || got[2] != "expired" {
		t.Fatalf("unexpected filters: %v", got)
	}
}
