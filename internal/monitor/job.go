package monitor

import (
	"context"
	"errors"
	"fmt"

	"librarian/internal/chat"
	"librarian/internal/executor"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/metrics"
	"librarian/internal/notifications"
	"librarian/internal/pathmap"
	"librarian/internal/services"
)

func (m *Monitor) runJob(ctx context.Context, job *ledger.OrganizerJob) {
	ctx = services.WithStage(services.WithHash(services.WithRequestID(ctx, job.RequestID), job.Hash), "organize")
	logger := logging.WithContext(ctx, m.logger)

	claimed, err := m.store.ClaimJob(ctx, job.Hash)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("claim job failed", logging.Error(err), logging.String(logging.FieldEventType, "job_claim_failed"))
		}
		return
	}
	if !claimed {
		return
	}

	req, err := m.store.GetRequest(ctx, job.RequestID)
	if err != nil || req == nil {
		m.finishFailed(ctx, job, nil, fmt.Errorf("load request %s: %w", job.RequestID, errors.Join(err, ledger.ErrRequestNotFound)), executor.Result{})
		return
	}

	result, runErr := m.runner.Run(ctx, executor.Job{
		Hash:       job.Hash,
		RequestID:  job.RequestID,
		Name:       job.Name,
		Title:      req.Candidate.Title,
		Target:     job.Target,
		SourcePath: job.SourcePath,
	})
	switch {
	case runErr == nil:
		// The organizer finished; record it even if shutdown began meanwhile.
		m.finishSucceeded(context.WithoutCancel(ctx), job, req, result)
	case ctx.Err() != nil:
		m.finishInterrupted(ctx, job)
	default:
		m.finishFailed(ctx, job, req, runErr, result)
	}
}

func (m *Monitor) finishSucceeded(ctx context.Context, job *ledger.OrganizerJob, req *ledger.Request, result executor.Result) {
	logger := logging.WithContext(ctx, m.logger)
	if err := m.store.UpdateJob(ctx, job.Hash, ledger.JobSucceeded, ledger.JobResult{
		OrganizedPath: result.OrganizedPath,
		OutputTail:    result.OutputTail,
	}); err != nil {
		logging.ErrorWithContext(logger, "record job success failed", "job_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger database access"),
		)
		return
	}
	metrics.RecordTransition(string(ledger.StateCompleted))
	logger.Info("request completed",
		logging.String(logging.FieldEventType, "request_completed"),
		logging.String("organized_path", result.OrganizedPath),
	)
	m.notify(ctx, req, fmt.Sprintf("%s is now in the library.", req.Candidate.Title))
	m.publish(ctx, notifications.EventOrganizeCompleted, notifications.Payload{
		"title": req.Candidate.Title,
		"path":  result.OrganizedPath,
	})

	if err := m.scanner.Scan(ctx); err != nil {
		logging.WarnWithContext(logger, "library scan failed", "library_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library.url, library.api_key and library.library_id"),
			logging.String(logging.FieldImpact, "new book appears after the next library scan"),
		)
		m.publish(ctx, notifications.EventLibraryScanFailed, notifications.Payload{
			"title": req.Candidate.Title,
			"error": err,
		})
	}
}

func (m *Monitor) finishFailed(ctx context.Context, job *ledger.OrganizerJob, req *ledger.Request, cause error, result executor.Result) {
	logger := logging.WithContext(ctx, m.logger)
	reason := describeJobFailure(cause)
	if err := m.store.UpdateJob(ctx, job.Hash, ledger.JobFailed, ledger.JobResult{
		Error:      reason,
		OutputTail: result.OutputTail,
	}); err != nil {
		logging.ErrorWithContext(logger, "record job failure failed", "job_record_failed",
			logging.Error(err),
			logging.String("cause", cause.Error()),
			logging.String(logging.FieldErrorHint, "check ledger database access"),
		)
		return
	}
	metrics.RecordTransition(string(ledger.StateOrganizeFailed))
	logging.WarnWithContext(logger, "organizer job failed", "job_failed",
		logging.Error(cause),
		logging.String("error_kind", string(services.Classify(cause))),
		logging.String(logging.FieldErrorHint, "fix the cause, then run 'librarian jobs clear "+job.Hash+"'"),
		logging.String(logging.FieldImpact, "download stays unorganized until the job is cleared"),
	)
	title := job.Name
	if req != nil {
		title = req.Candidate.Title
		m.notify(ctx, req, fmt.Sprintf("Could not add %s to the library: %s", title, reason))
	}
	m.publish(ctx, notifications.EventOrganizeFailed, notifications.Payload{
		"title": title,
		"error": reason,
	})
}

// finishInterrupted records a job cancelled by shutdown. The ledger write
// outlives the cancelled context.
func (m *Monitor) finishInterrupted(ctx context.Context, job *ledger.OrganizerJob) {
	recordCtx := context.WithoutCancel(ctx)
	if err := m.store.UpdateJob(recordCtx, job.Hash, ledger.JobFailed, ledger.JobResult{Error: ledger.InterruptedDetail}); err != nil {
		m.logger.Debug("could not record interrupted job", logging.String(logging.FieldHash, job.Hash), logging.Error(err))
		return
	}
	metrics.RecordTransition(string(ledger.StateOrganizeFailed))
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "organizer job interrupted by shutdown", "job_interrupted",
		logging.String(logging.FieldErrorHint, "run 'librarian jobs clear "+job.Hash+"' after restart"),
		logging.String(logging.FieldImpact, "download stays unorganized until the job is cleared"),
	)
}

func describeJobFailure(err error) string {
	switch {
	case errors.Is(err, executor.ErrRemoteUnreachable):
		return fmt.Sprintf("download stalled: the organizer host could not be reached (%v)", err)
	case errors.Is(err, pathmap.ErrNoMappingConfigured):
		return fmt.Sprintf("no path mapping covers the download location (%v)", err)
	case errors.Is(err, executor.ErrOrganizerFailed):
		return fmt.Sprintf("organizer failed (%v)", err)
	default:
		return err.Error()
	}
}

func (m *Monitor) notify(ctx context.Context, req *ledger.Request, message string) {
	to := chat.Recipient{UserID: req.UserID, ChannelID: req.ChannelID}
	if m.messenger == nil || to.Empty() {
		return
	}
	if err := m.messenger.Notify(ctx, to, message); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "chat notice failed", "chat_notice_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the chat webhook"),
			logging.String(logging.FieldImpact, "requester was not told about the outcome"),
		)
	}
}

func (m *Monitor) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
