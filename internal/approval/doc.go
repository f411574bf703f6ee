// Package approval drives a request from creation to download submission.
//
// The Coordinator renders approval prompts through the chat collaborator,
// records decisions exactly once in the ledger, submits approved candidates
// to the torrent client and binds the resolved hash. Recovery (Resume) and
// expiry (Sweep) run against the same ledger records, so a restart never
// submits a candidate twice.
package approval
