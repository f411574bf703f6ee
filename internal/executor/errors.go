package executor

import "errors"

var (
	// ErrRemoteUnreachable reports a dial, authentication, transfer or
	// transport failure reaching the organizer host.
	ErrRemoteUnreachable = errors.New("organizer host unreachable")
	// ErrOrganizerFailed reports an organizer run that exited non-zero or overran its timeout.
	ErrOrganizerFailed = errors.New("organizer failed")
)
