// Package monitor watches the torrent client for completed downloads and
// runs the organizer for each one exactly once.
//
// A single polling loop lists the pipeline category, creates an
// OrganizerJob for every complete torrent owned by a request and dispatches
// it to a bounded pool of workers. The ledger's job record is the
// at-most-once guard: CreateJob fails with ErrDuplicateJob on repeat ticks
// and ClaimJob lets only one worker run a job. Queued jobs left behind by a
// restart or by a full pool are picked up on the next tick.
package monitor
