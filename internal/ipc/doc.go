// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// The server owns the socket lifecycle and translates between daemon calls
// and the request/response pairs in types.go. Request, job, and status
// payloads reuse the api views so the socket and the HTTP API render
// identical records.
package ipc
