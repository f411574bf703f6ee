// Package resolver determines which torrent a submission produced.
//
// The torrent client does not return a hash when a URL is added, so the
// resolver diffs the client's hash set across the submission: it snapshots
// the known hashes, runs the submit function, then polls until new hashes
// appear. Hashes already bound in the ledger are never candidates. When
// several new hashes appear, the resolver narrows them by title similarity
// and then by added time, and fails with ErrAmbiguousResolution rather than
// guess.
package resolver
