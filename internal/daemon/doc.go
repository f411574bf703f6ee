// Package daemon coordinates the long-running librarian process.
//
// It wires configuration, the request ledger, the approval coordinator and
// the completion monitor into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon serves the HTTP API the chat
// collaborator calls back into, exposes ledger maintenance helpers to the IPC
// layer, and owns the operator test notification.
//
// Keep orchestration logic here: the request lifecycle itself lives in the
// approval and monitor packages while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
