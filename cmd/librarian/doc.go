// Package main hosts the librarian CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: lifecycle control, request and approval handling,
// organizer job maintenance, path translation, and log tailing. Configuration
// resolution and socket discovery live in context.go so subcommands only deal
// with presentation.
package main
