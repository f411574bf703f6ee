package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"librarian/internal/services"
)

// ExpiryDecider is recorded on approvals closed by the expiry sweep.
const ExpiryDecider = "system:expiry"

// BindApproval records the approver prompt for a created request and moves
// it to awaiting_approval in the same transaction.
func (s *Store) BindApproval(ctx context.Context, requestID, handle string) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return errors.New("approval message handle is required")
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := transition(ctx, tx, requestID, StateAwaitingApproval, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO approvals (request_id, message_handle, outcome, created_at) VALUES (?, ?, ?, ?)`,
			requestID, handle, string(OutcomePending), now(),
		)
		return err
	})
	if isUniqueViolation(err) {
		return invalidTransition(fmt.Sprintf("request %s or handle %s already has an approval", requestID, handle))
	}
	return err
}

// ApprovalByHandle looks up an approval by its message handle. It returns nil when absent.
func (s *Store) ApprovalByHandle(ctx context.Context, handle string) (*Approval, error) {
	return s.approvalWhere(ctx, "message_handle = ?", handle)
}

// ApprovalByRequest looks up the approval attached to a request. It returns nil when absent.
func (s *Store) ApprovalByRequest(ctx context.Context, requestID string) (*Approval, error) {
	return s.approvalWhere(ctx, "request_id = ?", requestID)
}

func (s *Store) approvalWhere(ctx context.Context, clause string, arg any) (*Approval, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+approvalColumns+` FROM approvals WHERE `+clause, arg)
	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return approval, nil
}

// Decide records an approver decision exactly once. The pending-to-decided
// update happens before the request transition inside one transaction, so
// two concurrent deliveries of the same decision produce one transition and
// one ErrAlreadyDecided.
func (s *Store) Decide(ctx context.Context, handle string, outcome Outcome, decider string) (*Request, error) {
	if outcome != OutcomeApproved && outcome != OutcomeDenied {
		return nil, services.Wrap(services.ErrValidation, "ledger", "decide", fmt.Sprintf("outcome %q", outcome), nil)
	}
	target := StateApproved
	if outcome == OutcomeDenied {
		target = StateDenied
	}

	var decided *Request
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE approvals SET outcome = ?, decider_id = ?, decided_at = ?
             WHERE message_handle = ? AND outcome = ?`,
			string(outcome), nullableString(decider), now(), handle, string(OutcomePending),
		)
		if err != nil {
			return fmt.Errorf("record decision: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("record decision: %w", err)
		}

		var requestID string
		lookupErr := tx.QueryRowContext(ctx, `SELECT request_id FROM approvals WHERE message_handle = ?`, handle).Scan(&requestID)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "ledger", "decide", "handle "+handle, ErrUnknownApproval)
		}
		if lookupErr != nil {
			return fmt.Errorf("lookup approval: %w", lookupErr)
		}
		if affected == 0 {
			return fmt.Errorf("handle %s: %w", handle, ErrAlreadyDecided)
		}

		if err := transition(ctx, tx, requestID, target, ""); err != nil {
			return err
		}
		decided, err = getRequest(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// ExpireApprovals closes every approval still pending at the cutoff and
// expires created requests that never reached the approver. It returns the
// requests that were expired.
func (s *Store) ExpireApprovals(ctx context.Context, cutoff time.Time) ([]*Request, error) {
	var expired []*Request
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		expired = nil
		limit := formatTime(cutoff)
		ids, err := collectIDs(ctx, tx,
			`SELECT request_id FROM approvals WHERE outcome = ? AND created_at <= ? ORDER BY created_at`,
			string(OutcomePending), limit,
		)
		if err != nil {
			return err
		}
		stale, err := collectIDs(ctx, tx,
			`SELECT id FROM requests WHERE state = ? AND created_at <= ? ORDER BY created_at`,
			string(StateCreated), limit,
		)
		if err != nil {
			return err
		}

		stamp := now()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE approvals SET outcome = ?, decider_id = ?, decided_at = ? WHERE request_id = ? AND outcome = ?`,
				string(OutcomeExpired), ExpiryDecider, stamp, id, string(OutcomePending),
			); err != nil {
				return fmt.Errorf("expire approval: %w", err)
			}
		}
		for _, id := range append(ids, stale...) {
			if err := transition(ctx, tx, id, StateExpired, "approval timed out"); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					continue
				}
				return err
			}
			req, err := getRequest(ctx, tx, id)
			if err != nil {
				return err
			}
			if req != nil {
				expired = append(expired, req)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func collectIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("collect ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
