package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"librarian/internal/config"
	"librarian/internal/logging"
)

// Prompt is the approver-facing summary of a request.
type Prompt struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id,omitempty"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Seeders   int    `json:"seeders,omitempty"`
	Source    string `json:"source,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	// ApproverChannel is where the prompt should be rendered.
	ApproverChannel string `json:"approver_channel,omitempty"`
}

// Recipient addresses a notice to a user, a channel, or both.
type Recipient struct {
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// Empty reports whether the recipient addresses nobody.
func (r Recipient) Empty() bool {
	return strings.TrimSpace(r.UserID) == "" && strings.TrimSpace(r.ChannelID) == ""
}

// Messenger renders approval prompts and delivers notices.
type Messenger interface {
	RenderApprovalPrompt(ctx context.Context, prompt Prompt) (string, error)
	Notify(ctx context.Context, to Recipient, message string) error
}

// New returns a webhook messenger when chat.webhook_url is set and a local
// messenger otherwise.
func New(cfg *config.Config, logger *slog.Logger) Messenger {
	if url := strings.TrimSpace(cfg.Chat.WebhookURL); url != "" {
		timeout := config.Seconds(cfg.Chat.RequestTimeout)
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return NewWebhook(url, cfg.Chat.Token, timeout)
	}
	return NewLocal(logger)
}

// LocalHandlePrefix marks handles issued by the local messenger.
const LocalHandlePrefix = "local:"

// Local logs prompts and notices instead of sending them.
type Local struct {
	logger *slog.Logger
}

// NewLocal builds a logging messenger.
func NewLocal(logger *slog.Logger) *Local {
	return &Local{logger: logging.NewComponentLogger(logger, "chat")}
}

func (l *Local) RenderApprovalPrompt(ctx context.Context, prompt Prompt) (string, error) {
	handle := LocalHandlePrefix + prompt.RequestID
	l.logger.Info("approval needed",
		logging.String(logging.FieldEventType, "approval_prompt"),
		logging.String(logging.FieldRequestID, prompt.RequestID),
		logging.String("title", prompt.Title),
		logging.String("user_id", prompt.UserID),
		logging.String("handle", handle),
		logging.String("next_step", fmt.Sprintf("librarian approve %s", handle)),
	)
	return handle, nil
}

func (l *Local) Notify(ctx context.Context, to Recipient, message string) error {
	l.logger.Info("chat notice",
		logging.String(logging.FieldEventType, "chat_notice"),
		logging.String("user_id", to.UserID),
		logging.String("channel_id", to.ChannelID),
		logging.String("message", message),
	)
	return nil
}
