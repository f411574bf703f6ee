package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"librarian/internal/services"
)

const userAgent = "Librarian-Go/0.1.0"

// Webhook posts prompts and notices to a chat adapter service.
type Webhook struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewWebhook builds a webhook messenger.
func NewWebhook(endpoint, token string, timeout time.Duration) *Webhook {
	return &Webhook{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    strings.TrimSpace(token),
		client:   &http.Client{Timeout: timeout},
	}
}

type promptEnvelope struct {
	Type   string `json:"type"`
	Prompt Prompt `json:"prompt"`
}

type noticeEnvelope struct {
	Type      string    `json:"type"`
	Recipient Recipient `json:"recipient"`
	Message   string    `json:"message"`
}

type promptReply struct {
	MessageHandle string `json:"message_handle"`
}

// RenderApprovalPrompt posts the prompt and returns the handle the adapter assigned.
func (w *Webhook) RenderApprovalPrompt(ctx context.Context, prompt Prompt) (string, error) {
	var reply promptReply
	if err := w.post(ctx, "/approvals", promptEnvelope{Type: "approval_prompt", Prompt: prompt}, &reply); err != nil {
		return "", err
	}
	handle := strings.TrimSpace(reply.MessageHandle)
	if handle == "" {
		return "", services.Wrap(services.ErrExternalTool, "chat", "render prompt", "adapter returned no message handle", nil)
	}
	return handle, nil
}

// Notify posts a plain-text notice.
func (w *Webhook) Notify(ctx context.Context, to Recipient, message string) error {
	if to.Empty() {
		return errors.New("chat notice has no recipient")
	}
	return w.post(ctx, "/notices", noticeEnvelope{Type: "notice", Recipient: to, Message: message}, nil)
}

func (w *Webhook) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode chat payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "chat", "post", "chat adapter unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrExternalTool, "chat", "post",
			fmt.Sprintf("chat adapter returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalTool, "chat", "decode", "invalid chat adapter reply", err)
	}
	return nil
}
