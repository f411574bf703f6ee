package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"librarian/internal/services"
)

// OpenHandle moves an approved request to submitting and records a pending
// torrent handle for it.
func (s *Store) OpenHandle(ctx context.Context, requestID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := transition(ctx, tx, requestID, StateSubmitting, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO torrent_handles (request_id, status, submitted_at) VALUES (?, ?, ?)`,
			requestID, string(HandlePending), now(),
		)
		if err != nil {
			return fmt.Errorf("open torrent handle: %w", err)
		}
		return nil
	})
}

// BindHash resolves a request's pending handle to hash and moves the request
// to downloading. Binding the same hash again is a no-op. A request that
// already holds a different hash, or a hash owned by another request,
// yields ErrAlreadyResolved.
func (s *Store) BindHash(ctx context.Context, requestID, hash string) error {
	hash = NormalizeHash(hash)
	if hash == "" {
		return services.Wrap(services.ErrValidation, "ledger", "bind hash", "empty hash", nil)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		handle, err := handleByRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if handle == nil {
			return notFound("handle for request " + requestID)
		}
		if handle.Hash == hash {
			return nil
		}
		if handle.Hash != "" {
			return fmt.Errorf("request %s holds %s: %w", requestID, handle.Hash, ErrAlreadyResolved)
		}
		if owner, err := ownerOf(ctx, tx, hash); err != nil {
			return err
		} else if owner != "" {
			return fmt.Errorf("hash %s owned by request %s: %w", hash, owner, ErrAlreadyResolved)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE torrent_handles SET hash = ?, status = ?, detail = NULL, resolved_at = ? WHERE request_id = ?`,
			hash, string(HandleResolved), now(), requestID,
		); err != nil {
			return fmt.Errorf("bind hash: %w", err)
		}
		return transition(ctx, tx, requestID, StateDownloading, "")
	})
}

// FailHandle marks a pending handle failed and moves the request to submission_failed.
func (s *Store) FailHandle(ctx context.Context, requestID, detail string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE torrent_handles SET status = ?, detail = ? WHERE request_id = ? AND hash IS NULL`,
			string(HandleFailed), nullableString(detail), requestID,
		); err != nil {
			return fmt.Errorf("fail handle: %w", err)
		}
		return transition(ctx, tx, requestID, StateSubmissionFailed, detail)
	})
}

// ManualBind is the operator route out of submission_failed: it binds hash
// to the request and moves it to downloading.
func (s *Store) ManualBind(ctx context.Context, requestID, hash string) error {
	hash = NormalizeHash(hash)
	if hash == "" {
		return services.Wrap(services.ErrValidation, "ledger", "manual bind", "empty hash", nil)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if owner, err := ownerOf(ctx, tx, hash); err != nil {
			return err
		} else if owner != "" && owner != requestID {
			return fmt.Errorf("hash %s owned by request %s: %w", hash, owner, ErrAlreadyResolved)
		}
		if err := moveState(ctx, tx, requestID, []State{StateSubmissionFailed}, StateDownloading, "bound manually"); err != nil {
			return err
		}
		stamp := now()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO torrent_handles (request_id, hash, status, detail, submitted_at, resolved_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(request_id) DO UPDATE SET hash = excluded.hash, status = excluded.status,
                detail = excluded.detail, resolved_at = excluded.resolved_at`,
			requestID, hash, string(HandleResolved), "bound manually", stamp, stamp,
		)
		if err != nil {
			return fmt.Errorf("manual bind: %w", err)
		}
		return nil
	})
}

// HandleByRequest returns the torrent handle of a request, or nil.
func (s *Store) HandleByRequest(ctx context.Context, requestID string) (*TorrentHandle, error) {
	return handleByRequest(ensureContext(ctx), s.db, requestID)
}

func handleByRequest(ctx context.Context, q querier, requestID string) (*TorrentHandle, error) {
	row := q.QueryRowContext(ctx, `SELECT `+handleColumns+` FROM torrent_handles WHERE request_id = ?`, requestID)
	handle, err := scanHandle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handle: %w", err)
	}
	return handle, nil
}

func ownerOf(ctx context.Context, q querier, hash string) (string, error) {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT request_id FROM torrent_handles WHERE hash = ?`, hash).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup hash owner: %w", err)
	}
	return owner, nil
}

// RequestByHash returns the request bound to hash, or nil.
func (s *Store) RequestByHash(ctx context.Context, hash string) (*Request, error) {
	ctx = ensureContext(ctx)
	owner, err := ownerOf(ctx, s.db, NormalizeHash(hash))
	if err != nil || owner == "" {
		return nil, err
	}
	return s.GetRequest(ctx, owner)
}

// BoundHashes returns every resolved hash mapped to its request ID.
func (s *Store) BoundHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT hash, request_id FROM torrent_handles WHERE hash IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list bound hashes: %w", err)
	}
	defer rows.Close()

	bound := make(map[string]string)
	for rows.Next() {
		var hash, requestID string
		if err := rows.Scan(&hash, &requestID); err != nil {
			return nil, fmt.Errorf("scan bound hash: %w", err)
		}
		bound[strings.ToLower(hash)] = requestID
	}
	return bound, rows.Err()
}
