package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"librarian/internal/services"
)

// InterruptedDetail is recorded on jobs that were running when the daemon stopped.
const InterruptedDetail = "interrupted by shutdown"

// CreateJob inserts the organizer job for a completed download and moves
// its request to organizing. A second call for the same hash returns
// ErrDuplicateJob and changes nothing.
func (s *Store) CreateJob(ctx context.Context, spec JobSpec) (*OrganizerJob, error) {
	spec.Hash = NormalizeHash(spec.Hash)
	if spec.Hash == "" || spec.RequestID == "" {
		return nil, services.Wrap(services.ErrValidation, "ledger", "create job", "hash and request id are required", nil)
	}
	if strings.TrimSpace(spec.Target) == "" {
		return nil, services.Wrap(services.ErrValidation, "ledger", "create job", "target is required", nil)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO organizer_jobs (hash, request_id, target, name, source_path, status, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(hash) DO NOTHING`,
			spec.Hash, spec.RequestID, spec.Target, nullableString(spec.Name), nullableString(spec.SourcePath),
			string(JobQueued), now(),
		)
		if err != nil {
			return fmt.Errorf("insert organizer job: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert organizer job: %w", err)
		} else if affected == 0 {
			return fmt.Errorf("hash %s: %w", spec.Hash, ErrDuplicateJob)
		}
		return transition(ctx, tx, spec.RequestID, StateOrganizing, "")
	})
	if err != nil {
		return nil, err
	}
	return s.FindJobByHash(ctx, spec.Hash)
}

// ClaimJob marks a queued job running. It reports false when another worker
// already claimed it.
func (s *Store) ClaimJob(ctx context.Context, hash string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE organizer_jobs SET status = ?, started_at = ? WHERE hash = ? AND status = ?`,
		string(JobRunning), now(), NormalizeHash(hash), string(JobQueued),
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return affected == 1, nil
}

// UpdateJob records the outcome of a running job and moves its request to
// completed or organize_failed.
func (s *Store) UpdateJob(ctx context.Context, hash string, status JobStatus, result JobResult) error {
	var target State
	switch status {
	case JobSucceeded:
		target = StateCompleted
	case JobFailed:
		target = StateOrganizeFailed
	default:
		return services.Wrap(services.ErrValidation, "ledger", "update job", fmt.Sprintf("status %q is not final", status), nil)
	}
	hash = NormalizeHash(hash)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var requestID string
		err := tx.QueryRowContext(ctx,
			`SELECT request_id FROM organizer_jobs WHERE hash = ?`, hash,
		).Scan(&requestID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("job " + hash)
		}
		if err != nil {
			return fmt.Errorf("lookup job: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE organizer_jobs SET status = ?, organized_path = ?, error_message = ?, output_tail = ?, completed_at = ?
             WHERE hash = ? AND status IN (?, ?)`,
			string(status), nullableString(result.OrganizedPath), nullableString(result.Error),
			nullableString(result.OutputTail), now(), hash, string(JobQueued), string(JobRunning),
		)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update job: %w", err)
		} else if affected == 0 {
			return invalidTransition("job " + hash + " already finished")
		}
		return transition(ctx, tx, requestID, target, result.Error)
	})
}

// ClearJob deletes a failed job and returns its request to downloading so the
// monitor schedules a fresh job on its next pass.
func (s *Store) ClearJob(ctx context.Context, hash string) error {
	hash = NormalizeHash(hash)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var requestID, status string
		err := tx.QueryRowContext(ctx,
			`SELECT request_id, status FROM organizer_jobs WHERE hash = ?`, hash,
		).Scan(&requestID, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("job " + hash)
		}
		if err != nil {
			return fmt.Errorf("lookup job: %w", err)
		}
		if JobStatus(status) != JobFailed {
			return invalidTransition(fmt.Sprintf("job %s is %s, only failed jobs can be cleared", hash, status))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM organizer_jobs WHERE hash = ?`, hash); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return moveState(ctx, tx, requestID, []State{StateOrganizeFailed}, StateDownloading, "job cleared")
	})
}

// FailInterruptedJobs fails every job left running by a previous process.
// It returns the number of jobs failed.
func (s *Store) FailInterruptedJobs(ctx context.Context, detail string) (int, error) {
	if detail == "" {
		detail = InterruptedDetail
	}
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		count = 0
		rows, err := tx.QueryContext(ctx,
			`SELECT hash, request_id FROM organizer_jobs WHERE status = ?`, string(JobRunning),
		)
		if err != nil {
			return fmt.Errorf("list running jobs: %w", err)
		}
		type pair struct{ hash, requestID string }
		var running []pair
		for rows.Next() {
			var p pair
			if err := rows.Scan(&p.hash, &p.requestID); err != nil {
				rows.Close()
				return fmt.Errorf("scan running job: %w", err)
			}
			running = append(running, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		stamp := now()
		for _, p := range running {
			if _, err := tx.ExecContext(ctx,
				`UPDATE organizer_jobs SET status = ?, error_message = ?, completed_at = ? WHERE hash = ?`,
				string(JobFailed), detail, stamp, p.hash,
			); err != nil {
				return fmt.Errorf("fail interrupted job: %w", err)
			}
			if err := transition(ctx, tx, p.requestID, StateOrganizeFailed, detail); err != nil && !errors.Is(err, ErrInvalidTransition) {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// FindJobByHash returns the job for hash, or nil.
func (s *Store) FindJobByHash(ctx context.Context, hash string) (*OrganizerJob, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM organizer_jobs WHERE hash = ?`, NormalizeHash(hash))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status (or every job when none is given), oldest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*OrganizerJob, error) {
	query := `SELECT ` + jobColumns + ` FROM organizer_jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, hash`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*OrganizerJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
