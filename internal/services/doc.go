// Package services defines shared utilities consumed by the lifecycle
// coordinator, the completion monitor and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, torrent hashes, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify which maps a
//     failure to the wording used in user and operator notifications.
//
// Use these helpers when wiring new integrations so error handling and
// observability stay uniform across the pipeline.
package services
