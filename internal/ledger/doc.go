// Package ledger persists the acquisition lifecycle in SQLite.
//
// The ledger owns four record types: Request, Approval, TorrentHandle and
// OrganizerJob. Every mutation is a single statement or a short transaction
// that commits before the call returns, and every state change is a
// compare-and-set against the lifecycle graph, so concurrent writers on the
// same record are linearized by the database rather than by callers.
//
// Uniqueness rules live in the schema: one non-terminal request per user and
// candidate, one approval per request, one message handle per approval, a
// write-once torrent hash per request, and at most one organizer job per hash.
package ledger
