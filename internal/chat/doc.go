// Package chat is the outbound side of the chat-platform collaborator.
//
// The engine asks the Messenger to render approval prompts, which return an
// opaque message handle, and to deliver plain-text notices to requesters and
// the approver channel. Decisions come back through the daemon's HTTP API
// keyed by that handle.
//
// Webhook posts JSON to an adapter service that owns the chat platform.
// Without a webhook, Local logs prompts and issues "local:<request id>"
// handles that an operator decides with `librarian approve` or `deny`.
package chat
