// Package notifications delivers operator alerts for lifecycle events.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event
// belongs to a group (approvals, submissions, completions, errors) that can
// be switched off independently in the [notifications] section.
//
// Requester-facing messages go through the chat package instead; this
// package only talks to the operator.
package notifications
