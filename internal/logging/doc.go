// Package logging assembles structured slog loggers and formatting helpers used
// across librarian.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so lifecycle code tags log lines with
// request IDs, torrent hashes and stages. A no-op logger is provided for tests
// and wiring code that cannot fail.
package logging
