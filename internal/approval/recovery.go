package approval

import (
	"context"
	"errors"
	"fmt"

	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/notifications"
	"librarian/internal/services"
)

// ResumeSummary counts what Resume did.
type ResumeSummary struct {
	Prompted    int
	Resubmitted int
	Interrupted int
}

// Resume settles requests left in flight by a previous run. Created requests
// are prompted again, approved requests are submitted, and requests caught
// mid-submission fail because the add may already have reached the client.
func (c *Coordinator) Resume(ctx context.Context) (ResumeSummary, error) {
	var summary ResumeSummary
	pending, err := c.store.ListRequests(ctx, ledger.StateCreated, ledger.StateApproved, ledger.StateSubmitting)
	if err != nil {
		return summary, err
	}

	var errs []error
	for _, req := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		reqCtx := services.WithRequestID(ctx, req.ID)
		switch req.State {
		case ledger.StateCreated:
			if c.autoApproves(req) {
				decided, err := c.autoApprove(reqCtx, req)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				c.continueApproved(reqCtx, decided)
				summary.Resubmitted++
				continue
			}
			if err := c.requestApproval(reqCtx, req); err != nil {
				errs = append(errs, err)
				continue
			}
			summary.Prompted++
		case ledger.StateApproved:
			c.continueApproved(reqCtx, req)
			summary.Resubmitted++
		case ledger.StateSubmitting:
			if err := c.interruptSubmission(reqCtx, req); err != nil {
				errs = append(errs, err)
				continue
			}
			summary.Interrupted++
		}
	}
	if summary != (ResumeSummary{}) {
		c.logger.Info("resumed in-flight requests",
			logging.String(logging.FieldEventType, "approval_resume"),
			logging.Int("prompted", summary.Prompted),
			logging.Int("resubmitted", summary.Resubmitted),
			logging.Int("interrupted", summary.Interrupted),
		)
	}
	return summary, errors.Join(errs...)
}

func (c *Coordinator) interruptSubmission(ctx context.Context, req *ledger.Request) error {
	if err := c.store.FailHandle(ctx, req.ID, InterruptedSubmissionDetail); err != nil {
		return err
	}
	metrics.RecordTransition(string(ledger.StateSubmissionFailed))
	logging.WarnWithContext(logging.WithContext(ctx, c.logger), "submission interrupted by restart", "submission_interrupted",
		logging.String(logging.FieldErrorHint, "check the torrent client and bind the hash with 'librarian requests bind' if it was added"),
		logging.String(logging.FieldImpact, "request was not resubmitted automatically"),
	)
	c.notifyRequester(ctx, req, fmt.Sprintf("Could not start %s: %s", req.Candidate.Title, InterruptedSubmissionDetail))
	c.notifyApprovers(ctx, fmt.Sprintf("Submission for %s (request %s) was %s; check the torrent client", req.Candidate.Title, req.ID, InterruptedSubmissionDetail))
	c.publish(ctx, notifications.EventSubmissionFailed, notifications.Payload{
		"title": req.Candidate.Title,
		"error": InterruptedSubmissionDetail,
	})
	return nil
}

// Sweep expires approvals that have waited longer than the approval timeout.
// A zero timeout disables expiry.
func (c *Coordinator) Sweep(ctx context.Context) error {
	if c.approvalTimeout <= 0 {
		return nil
	}
	expired, err := c.store.ExpireApprovals(ctx, c.now().Add(-c.approvalTimeout))
	if err != nil {
		return err
	}
	for _, req := range expired {
		reqCtx := services.WithRequestID(ctx, req.ID)
		metrics.RecordDecision(string(ledger.OutcomeExpired))
		metrics.RecordTransition(string(ledger.StateExpired))
		logging.WithContext(reqCtx, c.logger).Info("request expired",
			logging.String(logging.FieldEventType, "approval_expired"),
			logging.Duration("timeout", c.approvalTimeout),
		)
		c.notifyRequester(reqCtx, req, fmt.Sprintf("Your request for %s expired before it was approved.", req.Candidate.Title))
		c.publish(reqCtx, notifications.EventRequestExpired, notifications.Payload{"title": req.Candidate.Title})
	}
	return nil
}

// ManualBind resolves a failed submission to an operator-supplied hash.
func (c *Coordinator) ManualBind(ctx context.Context, requestID, hash string) (*ledger.Request, error) {
	if err := c.store.ManualBind(ctx, requestID, hash); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(ledger.StateDownloading))
	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil || req == nil {
		return req, err
	}
	ctx = services.WithRequestID(ctx, requestID)
	logging.WithContext(ctx, c.logger).Info("hash bound manually",
		logging.String(logging.FieldEventType, "manual_bind"),
		logging.String(logging.FieldHash, ledger.NormalizeHash(hash)),
	)
	c.notifyRequester(ctx, req, fmt.Sprintf("Downloading %s. You will get a message when it is in the library.", req.Candidate.Title))
	c.publish(ctx, notifications.EventDownloadStarted, notifications.Payload{
		"title": req.Candidate.Title,
		"hash":  ledger.NormalizeHash(hash),
	})
	return req, nil
}
