// Package logs provides file tailing shared by the CLI and the daemon's IPC
// log endpoint.
//
// Tail reads forward from a byte offset, or returns the last N lines when the
// offset is negative, and can wait for new lines to support
// `librarian logs --follow`. A match string narrows the output to lines that
// mention one request or hash.
package logs
