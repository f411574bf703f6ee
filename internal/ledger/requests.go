package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"librarian/internal/services"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateRequest persists a new request in the created state. The ID is
// generated when empty.
func (s *Store) CreateRequest(ctx context.Context, req *Request) error {
	if req == nil {
		return errors.New("request is nil")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return errors.New("request user id is required")
	}
	if strings.TrimSpace(req.Candidate.Title) == "" || strings.TrimSpace(req.Candidate.DownloadURL) == "" {
		return errors.New("request candidate needs a title and download url")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Candidate.MediaType == "" {
		req.Candidate.MediaType = MediaAudiobook
	}
	stamp := time.Now().UTC()
	req.State = StateCreated
	req.CreatedAt = stamp
	req.UpdatedAt = stamp

	_, err := s.execWithRetry(ctx,
		`INSERT INTO requests (
            id, user_id, channel_id, candidate_key, title, author, size_bytes, seeders,
            source, download_url, media_type, state, detail, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		req.ID,
		req.UserID,
		nullableString(req.ChannelID),
		req.Candidate.Key(),
		req.Candidate.Title,
		nullableString(req.Candidate.Author),
		req.Candidate.SizeBytes,
		req.Candidate.Seeders,
		nullableString(req.Candidate.Source),
		req.Candidate.DownloadURL,
		string(req.Candidate.MediaType),
		string(StateCreated),
		formatTime(stamp),
		formatTime(stamp),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s, %q: %w", req.UserID, req.Candidate.Title, ErrDuplicateRequest)
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest fetches a request by identifier. It returns nil when absent.
func (s *Store) GetRequest(ctx context.Context, id string) (*Request, error) {
	return getRequest(ensureContext(ctx), s.db, id)
}

func getRequest(ctx context.Context, q querier, id string) (*Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// UpdateState moves a request along an automatic edge of the lifecycle graph.
// The change is a compare-and-set: it fails with ErrInvalidTransition when the
// request's current state does not lead to newState.
func (s *Store) UpdateState(ctx context.Context, id string, newState State, detail string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return transition(ctx, s.db, id, newState, detail)
	})
}

func transition(ctx context.Context, q querier, id string, to State, detail string) error {
	from := predecessors(to)
	if len(from) == 0 {
		return invalidTransition(fmt.Sprintf("no edge leads to %s", to))
	}
	return moveState(ctx, q, id, from, to, detail)
}

// moveState applies a compare-and-set from any of the listed states. Moving a
// request back into an active state fails with ErrDuplicateRequest when the
// same user already has another active request for the candidate.
func moveState(ctx context.Context, q querier, id string, from []State, to State, detail string) error {
	args := []any{string(to), nullableString(detail), now(), id}
	args = append(args, stateArgs(from)...)
	res, err := q.ExecContext(ctx,
		`UPDATE requests SET state = ?, detail = ?, updated_at = ?
         WHERE id = ? AND state IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if isUniqueViolation(err) {
		return services.Wrap(services.ErrValidation, "ledger", "transition",
			fmt.Sprintf("request %s → %s: another request for this candidate is active", id, to), ErrDuplicateRequest)
	}
	if err != nil {
		return fmt.Errorf("update request state: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update request state: %w", err)
	} else if affected == 1 {
		return nil
	}

	var current string
	err = q.QueryRowContext(ctx, `SELECT state FROM requests WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("read request state: %w", err)
	}
	return invalidTransition(fmt.Sprintf("request %s: %s → %s", id, current, to))
}

// ListRequests returns requests filtered by state (or all requests when no state is provided),
// oldest first.
func (s *Store) ListRequests(ctx context.Context, states ...State) ([]*Request, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + requestColumns + ` FROM requests`
	var args []any
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		args = stateArgs(states)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// NonTerminal returns every request still in flight. It is the recovery scan
// run at startup.
func (s *Store) NonTerminal(ctx context.Context) ([]*Request, error) {
	return s.ListRequests(ctx, nonTerminalStates()...)
}

// Stats counts requests per state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(*) FROM requests GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan request stats: %w", err)
		}
		stats[State(state)] = count
	}
	return stats, rows.Err()
}

// Describe returns a request together with its approval, handle and job.
func (s *Store) Describe(ctx context.Context, id string) (*Detail, error) {
	ctx = ensureContext(ctx)
	req, err := s.GetRequest(ctx, id)
	if err != nil || req == nil {
		return nil, err
	}
	detail := &Detail{Request: req}
	if detail.Approval, err = s.ApprovalByRequest(ctx, id); err != nil {
		return nil, err
	}
	if detail.Handle, err = s.HandleByRequest(ctx, id); err != nil {
		return nil, err
	}
	if detail.Handle != nil && detail.Handle.Hash != "" {
		if detail.Job, err = s.FindJobByHash(ctx, detail.Handle.Hash); err != nil {
			return nil, err
		}
	}
	return detail, nil
}
