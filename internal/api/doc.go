// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates ledger records into transport-friendly DTOs that
// the CLI and the chat collaborator can consume without coupling to internal
// types.
//
// # Key Types
//
// RequestView: transport representation of a request with its candidate.
//
// RequestDetail: a request together with its approval, torrent handle and
// organizer job.
//
// JobView: transport representation of an organizer job.
//
// DaemonStatus: daemon running state, request counts and monitor status.
//
// CreateRequestPayload / ApprovalPayload: inbound chat callbacks, validated
// with go-playground/validator before they reach the coordinator.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the chat collaborator's payloads.
// Ledger enums are exposed as lowercase strings and timestamps use RFC3339
// with milliseconds.
package api
