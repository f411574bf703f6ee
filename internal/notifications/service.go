package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"librarian/internal/config"
)

const userAgent = "Librarian-Go/0.1.0"

// Event names an operator-facing lifecycle event.
type Event string

const (
	EventApprovalRequested Event = "approval_requested"
	EventAutoApproved      Event = "auto_approved"
	EventRequestDenied     Event = "request_denied"
	EventRequestExpired    Event = "request_expired"
	EventDownloadStarted   Event = "download_started"
	EventSubmissionFailed  Event = "submission_failed"
	EventOrganizeCompleted Event = "organize_completed"
	EventOrganizeFailed    Event = "organize_failed"
	EventLibraryScanFailed Event = "library_scan_failed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes operator notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		groups: map[string]bool{
			"approvals":   cfg.Notifications.Approvals,
			"submissions": cfg.Notifications.Submissions,
			"completions": cfg.Notifications.Completions,
			"errors":      cfg.Notifications.Errors,
			"test":        true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	groups   map[string]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	group, msg, ok := render(event, payload)
	if !ok || !n.groups[group] {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (string, message, bool) {
	title := payload.text("title")
	switch event {
	case EventApprovalRequested:
		return "approvals", message{
			title: "Librarian - Approval Needed",
			body:  fmt.Sprintf("📚 %s requested %s%s", orUnknown(payload.text("user")), title, payload.suffix("author", " by ")),
			tags:  []string{"librarian", "approval", "pending"},
		}, true
	case EventAutoApproved:
		return "approvals", message{
			title: "Librarian - Auto-approved",
			body:  fmt.Sprintf("✅ Auto-approved %s (%s seeders)", title, orUnknown(payload.text("seeders"))),
			tags:  []string{"librarian", "approval", "auto"},
		}, true
	case EventRequestDenied:
		return "approvals", message{
			title: "Librarian - Denied",
			body:  fmt.Sprintf("🚫 Denied: %s", title),
			tags:  []string{"librarian", "approval", "denied"},
		}, true
	case EventRequestExpired:
		return "approvals", message{
			title: "Librarian - Expired",
			body:  fmt.Sprintf("⌛ Approval expired: %s", title),
			tags:  []string{"librarian", "approval", "expired"},
		}, true
	case EventDownloadStarted:
		return "submissions", message{
			title: "Librarian - Downloading",
			body:  fmt.Sprintf("⬇️ Downloading: %s%s", title, payload.suffix("hash", "\nHash: ")),
			tags:  []string{"librarian", "torrent", "started"},
		}, true
	case EventSubmissionFailed:
		return "submissions", message{
			title:    "Librarian - Submission Failed",
			body:     fmt.Sprintf("❌ Could not resolve download for %s: %s", title, orUnknown(payload.text("error"))),
			tags:     []string{"librarian", "torrent", "failed"},
			priority: "high",
		}, true
	case EventOrganizeCompleted:
		return "completions", message{
			title: "Librarian - Library Updated",
			body:  fmt.Sprintf("Added to library: %s%s", title, payload.suffix("path", "\nPath: ")),
			tags:  []string{"librarian", "organize", "completed"},
		}, true
	case EventOrganizeFailed:
		return "errors", message{
			title:    "Librarian - Organize Failed",
			body:     fmt.Sprintf("❌ Organizer failed for %s: %s", title, orUnknown(payload.text("error"))),
			tags:     []string{"librarian", "organize", "failed"},
			priority: "high",
		}, true
	case EventLibraryScanFailed:
		return "errors", message{
			title: "Librarian - Library Scan Failed",
			body:  fmt.Sprintf("Library scan failed after %s: %s", title, orUnknown(payload.text("error"))),
			tags:  []string{"librarian", "library", "failed"},
		}, true
	case EventError:
		body := "❌ Error"
		if label := payload.text("context"); label != "" {
			body += " with " + label
		}
		return "errors", message{
			title:    "Librarian - Error",
			body:     body + ": " + orUnknown(payload.text("error")),
			tags:     []string{"librarian", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return "test", message{
			title:    "Librarian - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"librarian", "test"},
			priority: "low",
		}, true
	default:
		return "", message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) suffix(key, prefix string) string {
	if value := p.text(key); value != "" {
		return prefix + value
	}
	return ""
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
