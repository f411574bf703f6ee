package approval

import (
	"context"
	"errors"
	"fmt"

	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/notifications"
	"librarian/internal/resolver"
	"librarian/internal/services"
	"librarian/internal/torrent"
)

// InterruptedSubmissionDetail is recorded on requests found mid-submission at startup.
const InterruptedSubmissionDetail = "interrupted during submission"

// Submit moves an approved request through submission and hash resolution.
// A cancelled ctx leaves the request in submitting for Resume to settle.
func (c *Coordinator) Submit(ctx context.Context, req *ledger.Request) (*ledger.Request, error) {
	ctx = services.WithStage(services.WithRequestID(ctx, req.ID), "submission")
	logger := logging.WithContext(ctx, c.logger)

	if err := c.store.OpenHandle(ctx, req.ID); err != nil {
		logging.ErrorWithContext(logger, "open torrent handle failed", "submission_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the request with 'librarian requests show'"),
		)
		return nil, err
	}
	metrics.RecordTransition(string(ledger.StateSubmitting))

	desc := torrent.Descriptor{
		URL:      req.Candidate.DownloadURL,
		Category: c.category,
		SavePath: c.savePath,
	}
	result, err := c.resolver.Resolve(ctx, req, func(ctx context.Context) error {
		return c.torrents.Submit(ctx, desc)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return c.failSubmission(ctx, req, err)
	}

	if err := c.store.BindHash(ctx, req.ID, result.Torrent.Hash); err != nil {
		return c.failSubmission(ctx, req, err)
	}
	metrics.RecordTransition(string(ledger.StateDownloading))
	logger.Info("download started",
		logging.String(logging.FieldEventType, "download_started"),
		logging.String(logging.FieldHash, result.Torrent.Hash),
		logging.String("torrent", result.Torrent.Name),
		logging.String("method", result.Method),
	)
	c.notifyRequester(ctx, req, fmt.Sprintf("Downloading %s. You will get a message when it is in the library.", req.Candidate.Title))
	c.publish(ctx, notifications.EventDownloadStarted, notifications.Payload{
		"title": req.Candidate.Title,
		"hash":  result.Torrent.Hash,
	})
	return c.store.GetRequest(ctx, req.ID)
}

// failSubmission records a failed submission and tells both parties.
func (c *Coordinator) failSubmission(ctx context.Context, req *ledger.Request, cause error) (*ledger.Request, error) {
	reason := describeSubmissionFailure(cause)
	logger := logging.WithContext(ctx, c.logger)
	if err := c.store.FailHandle(ctx, req.ID, reason); err != nil {
		logging.ErrorWithContext(logger, "record submission failure failed", "submission_record_failed",
			logging.Error(err),
			logging.String("cause", cause.Error()),
			logging.String(logging.FieldErrorHint, "check ledger database access"),
		)
		return nil, errors.Join(cause, err)
	}
	metrics.RecordTransition(string(ledger.StateSubmissionFailed))
	logging.WarnWithContext(logger, "submission failed", "submission_failed",
		logging.Error(cause),
		logging.String("error_kind", string(services.Classify(cause))),
		logging.String(logging.FieldErrorHint, "bind the hash with 'librarian requests bind' once the torrent is identified"),
		logging.String(logging.FieldImpact, "request will not download until an operator intervenes"),
	)

	c.notifyRequester(ctx, req, fmt.Sprintf("Could not start %s: %s", req.Candidate.Title, reason))
	c.notifyApprovers(ctx, fmt.Sprintf("Submission failed for %s (request %s): %s", req.Candidate.Title, req.ID, reason))
	c.publish(ctx, notifications.EventSubmissionFailed, notifications.Payload{
		"title": req.Candidate.Title,
		"error": reason,
	})
	updated, err := c.store.GetRequest(ctx, req.ID)
	if err != nil {
		return nil, cause
	}
	return updated, cause
}

func describeSubmissionFailure(err error) string {
	switch {
	case errors.Is(err, resolver.ErrResolutionTimeout):
		return "download stalled: the torrent did not show up in the client in time and may still be present there"
	case errors.Is(err, resolver.ErrAmbiguousResolution):
		return "several new torrents appeared at once and none could be matched to this request"
	case errors.Is(err, ledger.ErrAlreadyResolved):
		return "the new torrent is already bound to another request"
	case errors.Is(err, services.ErrTransient):
		return fmt.Sprintf("the torrent client did not accept the download (%v)", err)
	default:
		return err.Error()
	}
}
