package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"librarian/internal/chat"
	"librarian/internal/config"
)

func TestWebhookRenderReturnsHandle(t *testing.T) {
	var gotAuth string
	var got struct {
		Type   string      `json:"type"`
		Prompt chat.Prompt `json:"prompt"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/approvals" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode prompt: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message_handle": "discord:123"})
	}))
	defer server.Close()

	messenger := chat.NewWebhook(server.URL+"/", "tok", time.Second)
	handle, err := messenger.RenderApprovalPrompt(context.Background(), chat.Prompt{RequestID: "r1", Title: "Dune", UserID: "u1"})
	if err != nil {
		t.Fatalf("RenderApprovalPrompt failed: %v", err)
	}
	if handle != "discord:123" {
		t.Fatalf("unexpected handle %q", handle)
	}
	if gotAuth != "Bearer tok" || got.Type != "approval_prompt" || got.Prompt.Title != "Dune" {
		t.Fatalf("unexpected request: auth=%q body=%+v", gotAuth, got)
	}
}

func TestWebhookRejectsEmptyHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	messenger := chat.NewWebhook(server.URL, "", time.Second)
	if _, err := messenger.RenderApprovalPrompt(context.Background(), chat.Prompt{RequestID: "r1"}); err == nil {
		t.Fatal("expected error for empty handle")
	}
}

func TestWebhookNotifyReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer server.Close()

	messenger := chat.NewWebhook(server.URL, "", time.Second)
	err := messenger.Notify(context.Background(), chat.Recipient{UserID: "u1"}, "hello")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if err := messenger.Notify(context.Background(), chat.Recipient{}, "hello"); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}

func TestNewFallsBackToLocal(t *testing.T) {
	cfg := config.Default()
	messenger := chat.New(&cfg, nil)
	handle, err := messenger.RenderApprovalPrompt(context.Background(), chat.Prompt{RequestID: "abc"})
	if err != nil {
		t.Fatalf("RenderApprovalPrompt failed: %v", err)
	}
	if handle != chat.LocalHandlePrefix+"abc" {
		t.Fatalf("unexpected local handle %q", handle)
	}
}
