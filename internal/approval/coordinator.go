package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"librarian/internal/chat"
	"librarian/internal/config"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/notifications"
	"librarian/internal/resolver"
	"librarian/internal/services"
	"librarian/internal/torrent"
)

// AutoApproveDecider is recorded on approvals decided by the seeder rule.
const AutoApproveDecider = "auto-approve"

// autoHandlePrefix marks synthetic handles bound by auto-approval.
const autoHandlePrefix = "auto:"

// Submitter adds downloads to the torrent client.
type Submitter interface {
	Submit(ctx context.Context, desc torrent.Descriptor) error
}

// Dependencies are the collaborators a Coordinator drives.
type Dependencies struct {
	Store     *ledger.Store
	Resolver  *resolver.Resolver
	Torrents  Submitter
	Messenger chat.Messenger
	Notifier  notifications.Service
	Logger    *slog.Logger
	// Now overrides the clock used for approval expiry.
	Now func() time.Time
}

// Decision reports the effect of an approval event.
type Decision struct {
	Request *ledger.Request
	// AlreadyDecided is set when the delivery repeated an earlier decision.
	AlreadyDecided bool
	// Queued is set when an approved submission continues in the background.
	Queued bool
	// SubmitErr is the submission failure for an inline approved decision.
	SubmitErr error
}

// Coordinator is the approval state machine.
type Coordinator struct {
	store     *ledger.Store
	resolver  *resolver.Resolver
	torrents  Submitter
	messenger chat.Messenger
	notifier  notifications.Service
	logger    *slog.Logger

	category        string
	savePath        string
	approverChannel string
	approvalTimeout time.Duration
	autoApproveMin  int
	now             func() time.Time

	mu         sync.Mutex
	background context.Context
	wg         sync.WaitGroup
}

// New constructs a coordinator from configuration and collaborators.
func New(cfg *config.Config, deps Dependencies) *Coordinator {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:           deps.Store,
		resolver:        deps.Resolver,
		torrents:        deps.Torrents,
		messenger:       deps.Messenger,
		notifier:        notifier,
		logger:          logging.NewComponentLogger(deps.Logger, "approval"),
		category:        cfg.Torrent.Category,
		savePath:        cfg.Torrent.SavePath,
		approverChannel: cfg.Approval.ApproverChannel,
		approvalTimeout: config.Seconds(cfg.Approval.Timeout),
		autoApproveMin:  cfg.Approval.AutoApproveMinSeeders,
		now:             now,
	}
}

// Start makes approved submissions run in the background under ctx instead
// of inside the caller's request.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.background = ctx
}

// Stop waits for background submissions to return.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.background = nil
	c.mu.Unlock()
	c.wg.Wait()
}

// OnCreated persists a new request and asks for approval. Candidates at or
// above the auto-approval seeder count skip the prompt.
func (c *Coordinator) OnCreated(ctx context.Context, req *ledger.Request) (*ledger.Request, error) {
	if err := c.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(ledger.StateCreated))
	ctx = services.WithRequestID(ctx, req.ID)
	logging.WithContext(ctx, c.logger).Info("request created",
		logging.String(logging.FieldEventType, "request_created"),
		logging.String("title", req.Candidate.Title),
		logging.String("user_id", req.UserID),
		logging.Int("seeders", req.Candidate.Seeders),
	)

	if c.autoApproves(req) {
		decided, err := c.autoApprove(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.continueApproved(ctx, decided).Request, nil
	}
	if err := c.requestApproval(ctx, req); err != nil {
		return req, err
	}
	return c.store.GetRequest(ctx, req.ID)
}

func (c *Coordinator) autoApproves(req *ledger.Request) bool {
	return c.autoApproveMin > 0 && req.Candidate.Seeders >= c.autoApproveMin
}

func (c *Coordinator) autoApprove(ctx context.Context, req *ledger.Request) (*ledger.Request, error) {
	handle := autoHandlePrefix + req.ID
	if err := c.store.BindApproval(ctx, req.ID, handle); err != nil {
		return nil, err
	}
	decided, err := c.store.Decide(ctx, handle, ledger.OutcomeApproved, AutoApproveDecider)
	if err != nil {
		return nil, err
	}
	metrics.RecordDecision("auto")
	metrics.RecordTransition(string(ledger.StateApproved))
	logging.WithContext(ctx, c.logger).Info("request auto-approved",
		logging.String(logging.FieldEventType, "approval_auto"),
		logging.Int("seeders", req.Candidate.Seeders),
		logging.Int("threshold", c.autoApproveMin),
	)
	c.publish(ctx, notifications.EventAutoApproved, notifications.Payload{
		"title":   req.Candidate.Title,
		"seeders": req.Candidate.Seeders,
	})
	return decided, nil
}

// requestApproval renders the prompt and binds its handle.
func (c *Coordinator) requestApproval(ctx context.Context, req *ledger.Request) error {
	logger := logging.WithContext(ctx, c.logger)
	handle, err := c.messenger.RenderApprovalPrompt(ctx, chat.Prompt{
		RequestID:       req.ID,
		UserID:          req.UserID,
		ChannelID:       req.ChannelID,
		Title:           req.Candidate.Title,
		Author:          req.Candidate.Author,
		SizeBytes:       req.Candidate.SizeBytes,
		Seeders:         req.Candidate.Seeders,
		Source:          req.Candidate.Source,
		MediaType:       string(req.Candidate.MediaType),
		ApproverChannel: c.approverChannel,
	})
	if err != nil {
		logging.WarnWithContext(logger, "approval prompt failed", "approval_prompt_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check chat.webhook_url; the prompt is retried on restart"),
			logging.String(logging.FieldImpact, "request waits in created until prompted or expired"),
		)
		return services.Wrap(services.ErrTransient, "approval", "render prompt", req.ID, err)
	}
	if err := c.store.BindApproval(ctx, req.ID, handle); err != nil {
		return err
	}
	metrics.RecordTransition(string(ledger.StateAwaitingApproval))
	logger.Info("approval requested",
		logging.String(logging.FieldEventType, "approval_requested"),
		logging.String("handle", handle),
	)
	c.publish(ctx, notifications.EventApprovalRequested, notifications.Payload{
		"title":  req.Candidate.Title,
		"author": req.Candidate.Author,
		"user":   req.UserID,
	})
	return nil
}

// OnApprovalEvent applies an approver decision. Repeat deliveries return
// ledger.ErrAlreadyDecided with Decision.AlreadyDecided set and change nothing.
func (c *Coordinator) OnApprovalEvent(ctx context.Context, handle string, outcome ledger.Outcome, decider string) (Decision, error) {
	req, err := c.store.Decide(ctx, handle, outcome, decider)
	if errors.Is(err, ledger.ErrAlreadyDecided) {
		existing, lookupErr := c.store.ApprovalByHandle(ctx, handle)
		decision := Decision{AlreadyDecided: true}
		if lookupErr == nil && existing != nil {
			decision.Request, _ = c.store.GetRequest(ctx, existing.RequestID)
		}
		c.logger.Info("duplicate approval delivery ignored",
			logging.String(logging.FieldEventType, "approval_duplicate"),
			logging.String("handle", handle),
		)
		return decision, err
	}
	if err != nil {
		return Decision{}, err
	}

	metrics.RecordDecision(string(outcome))
	metrics.RecordTransition(string(req.State))
	ctx = services.WithRequestID(ctx, req.ID)
	logging.WithContext(ctx, c.logger).Info("approval decided",
		logging.String(logging.FieldEventType, "approval_decided"),
		logging.String("outcome", string(outcome)),
		logging.String("decider", decider),
	)

	if outcome == ledger.OutcomeDenied {
		c.notifyRequester(ctx, req, fmt.Sprintf("Your request for %s was denied.", req.Candidate.Title))
		c.publish(ctx, notifications.EventRequestDenied, notifications.Payload{"title": req.Candidate.Title})
		return Decision{Request: req}, nil
	}
	return c.continueApproved(ctx, req), nil
}

// continueApproved submits an approved request inline, or hands it to the
// background group once Start has been called.
func (c *Coordinator) continueApproved(ctx context.Context, req *ledger.Request) Decision {
	c.mu.Lock()
	background := c.background
	if background != nil {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	if background != nil {
		go func() {
			defer c.wg.Done()
			bgCtx := services.WithRequestID(background, req.ID)
			_, _ = c.Submit(bgCtx, req)
		}()
		return Decision{Request: req, Queued: true}
	}
	updated, err := c.Submit(ctx, req)
	if updated == nil {
		updated = req
	}
	return Decision{Request: updated, SubmitErr: err}
}

func (c *Coordinator) notifyRequester(ctx context.Context, req *ledger.Request, message string) {
	c.notify(ctx, chat.Recipient{UserID: req.UserID, ChannelID: req.ChannelID}, message)
}

func (c *Coordinator) notifyApprovers(ctx context.Context, message string) {
	if c.approverChannel == "" {
		return
	}
	c.notify(ctx, chat.Recipient{ChannelID: c.approverChannel}, message)
}

func (c *Coordinator) notify(ctx context.Context, to chat.Recipient, message string) {
	if c.messenger == nil || to.Empty() {
		return
	}
	if err := c.messenger.Notify(ctx, to, message); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "chat notice failed", "chat_notice_failed",
			logging.Error(err),
			logging.String("user_id", to.UserID),
			logging.String("channel_id", to.ChannelID),
			logging.String(logging.FieldErrorHint, "check the chat webhook"),
			logging.String(logging.FieldImpact, "recipient was not told about the request update"),
		)
	}
}

func (c *Coordinator) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			c.logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		c.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
