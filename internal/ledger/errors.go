package ledger

import (
	"errors"

	"librarian/internal/services"
)

var (
	// ErrInvalidTransition reports a state change the lifecycle graph does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnknownApproval reports an approval callback for a handle the ledger never issued.
	ErrUnknownApproval = errors.New("unknown approval handle")
	// ErrAlreadyDecided reports a repeated decision for an approval that is no longer pending.
	ErrAlreadyDecided = errors.New("approval already decided")
	// ErrAlreadyResolved reports an attempt to rebind a request's hash or reuse another request's hash.
	ErrAlreadyResolved = errors.New("torrent hash already resolved")
	// ErrDuplicateJob reports a second organizer job for the same hash.
	ErrDuplicateJob = errors.New("organizer job already exists")
	// ErrDuplicateRequest reports a second in-flight request for the same user and candidate.
	ErrDuplicateRequest = errors.New("request already in flight")
	// ErrRequestNotFound reports an unknown request identifier.
	ErrRequestNotFound = errors.New("request not found")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// IsBenign reports whether err is a duplicate-delivery outcome that callers
// should treat as a no-op.
func IsBenign(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrDuplicateJob)
}

func invalidTransition(detail string) error {
	return services.Wrap(services.ErrValidation, "ledger", "transition", detail, ErrInvalidTransition)
}

func notFound(detail string) error {
	return services.Wrap(services.ErrNotFound, "ledger", "lookup", detail, ErrRequestNotFound)
}
